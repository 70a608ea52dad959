package substitute

import (
	"context"
	"strings"
	"testing"

	"github.com/dlclark/regexp2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func mustCompile(t *testing.T, expr string) *regexp2.Regexp {
	t.Helper()
	re, err := regexp2.Compile(expr, regexp2.None)
	require.NoError(t, err)
	return re
}

func TestReplaceAll_Template(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		tmpl    string
		want    string
	}{
		{"escaped literal", regexp2.Escape("foo"), "foobar foo baz", "X", "Xbar X baz"},
		{"no match returns subject", "q+", "foobar", "X", "foobar"},
		{"zero-length match with empty template", "a*", "b", "", "b"},
		{"zero-length matches with template", "a*", "b", "X", "XbX"},
		{"empty match after non-empty match", "a*", "baa", "X", "XbXX"},
		{"numbered group", `(\w+)@(\w+)`, "me@host", "$2 at $1", "host at me"},
		{"whole match", `\d+`, "a1b22", "<$0>", "a<1>b<22>"},
		{"named group", `(?<word>[a-z]+)`, "ab 12", "[${word}]", "[ab] 12"},
		{"multi-digit group falls back to single digit", `(a)`, "a", "$10", "a0"},
		{"escaped dollar", `x`, "x", `\$1`, "$1"},
		{"escaped backslash", `x`, "x", `\\`, `\`},
		{"unmatched optional group", `a(b)?`, "a", "[$1]", "[]"},
		{"multibyte subject", "ö", "wörld öl", "o", "world ol"},
		{"back-reference", `(\w)\1`, "aabcc", "_", "_b_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replaceAll(context.Background(), mustCompile(t, tt.pattern), tt.subject, WithTemplate(tt.tmpl))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplaceAll_InvalidTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
	}{
		{"trailing dollar", "x$"},
		{"trailing backslash", `x\`},
		{"missing group", "$3"},
		{"unknown name", "${nope}"},
		{"unterminated name", "${word"},
		{"empty name", "${}"},
		{"illegal reference", "$x"},
	}
	re := mustCompile(t, `(?<word>a)`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := replaceAll(context.Background(), re, "a", WithTemplate(tt.tmpl))
			assert.Error(t, err)
		})
	}
}

func TestReplaceAll_Transform(t *testing.T) {
	upper := WithTransform(func(ctx context.Context, matched string) (string, error) {
		return strings.ToUpper(matched) + "$1\\", nil
	})
	got, err := replaceAll(context.Background(), mustCompile(t, `b+`), "abbcb", upper)
	require.NoError(t, err)
	assert.Equal(t, `aBB$1\cB$1\`, got)
}

func TestReplaceAll_TransformError(t *testing.T) {
	boom := errors.New("boom")
	fail := WithTransform(func(ctx context.Context, matched string) (string, error) {
		return "", boom
	})
	_, err := replaceAll(context.Background(), mustCompile(t, `b`), "abc", fail)
	assert.ErrorIs(t, err, boom)
}

func TestReplaceAll_PreservesInvalidUTF8(t *testing.T) {
	subject := "a\xffb\xfe"
	got, err := replaceAll(context.Background(), mustCompile(t, `b`), subject, WithTemplate("c"))
	require.NoError(t, err)
	assert.Equal(t, "a\xffc\xfe", got)
}

func TestReplaceAll_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := replaceAll(ctx, mustCompile(t, `a`), "aaa", WithTemplate("b"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplaceAll_PropertyNoMatchIsIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	re := regexp2.MustCompile(`[0-9]+`, regexp2.None)
	properties.Property("subjects without matches come back byte-for-byte", prop.ForAll(
		func(subject string) bool {
			got, err := replaceAll(context.Background(), re, subject, WithTemplate("X"))
			return err == nil && got == subject
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestReplaceAll_PropertyLiteralReplacesEveryOccurrence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pieces := []string{"a", "b", "ab", ".", "$", "(x)", "\\", "é"}
	literals := []string{"a", "ab", ".", "$", "(x)", "\\", "é", "ba"}
	pick := func(from []string) gopter.Gen {
		return gen.IntRange(0, len(from)-1).Map(func(i int) string { return from[i] })
	}
	properties.Property("escaped literal matches strings.ReplaceAll", prop.ForAll(
		func(parts []string, literal string) bool {
			subject := strings.Join(parts, "")
			re := regexp2.MustCompile(regexp2.Escape(literal), regexp2.None)
			got, err := replaceAll(context.Background(), re, subject, WithTemplate("#"))
			return err == nil && got == strings.ReplaceAll(subject, literal, "#")
		},
		gen.SliceOf(pick(pieces)),
		pick(literals),
	))

	properties.TestingRun(t)
}
