// internal/substitute/replace.go
package substitute

import (
	"context"
	"strings"

	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"
)

/*
 * Single-pass match and replace.
 *
 * Scans the subject left to right with FindRunesMatch/FindNextMatch and
 * splices replacement text into an output buffer. regexp2 reports match
 * positions in runes; a rune->byte offset table lets unmatched spans be
 * copied from the original string, so non-matched bytes survive verbatim
 * even when the subject is not valid UTF-8.
 *
 * Replacement sources:
 *   - Transform: called with the matched text, output spliced literally
 *   - Template: expanded per match ($n, ${name}, \x escapes)
 *
 * Zero-length matches: the engine advances past an empty match before the
 * next search. The loop additionally stops if two consecutive empty
 * matches land on the same index, so a misbehaving engine cannot spin.
 */

// TransformFunc maps one matched substring to its replacement text.
// The returned text is inserted literally. Implementations should honor
// ctx cancellation; time spent here counts against the rule's budget.
type TransformFunc func(ctx context.Context, matched string) (string, error)

// Replacement selects how each match is rewritten. Transform wins when set.
type Replacement struct {
	Template  string
	Transform TransformFunc
}

// WithTemplate returns a Replacement expanding tmpl for every match.
func WithTemplate(tmpl string) Replacement {
	return Replacement{Template: tmpl}
}

// WithTransform returns a Replacement delegating every match to fn.
func WithTransform(fn TransformFunc) Replacement {
	return Replacement{Transform: fn}
}

// replaceAll performs the worker's match/replace pass.
func replaceAll(ctx context.Context, re *regexp2.Regexp, subject string, repl Replacement) (string, error) {
	runes := []rune(subject)
	m, err := re.FindRunesMatch(runes)
	if err != nil {
		return "", errors.Errorf("matching: %w", err)
	}
	if m == nil {
		return subject, nil
	}

	offsets := runeOffsets(subject, len(runes))
	var b strings.Builder
	b.Grow(len(subject))

	last := 0
	for m != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start, end := m.Index, m.Index+m.Length
		b.WriteString(subject[offsets[last]:offsets[start]])

		if repl.Transform != nil {
			out, err := repl.Transform(ctx, subject[offsets[start]:offsets[end]])
			if err != nil {
				return "", errors.Errorf("transform: %w", err)
			}
			b.WriteString(out)
		} else if err := expandTemplate(&b, repl.Template, m); err != nil {
			return "", err
		}
		last = end

		next, err := re.FindNextMatch(m)
		if err != nil {
			return "", errors.Errorf("matching: %w", err)
		}
		if next != nil && (next.Index < last || (m.Length == 0 && next.Length == 0 && next.Index == start)) {
			break
		}
		m = next
	}

	b.WriteString(subject[offsets[last]:])
	return b.String(), nil
}

// runeOffsets returns the byte offset of every rune in s plus len(s).
// Ranging over a string yields one step per invalid byte, matching the
// []rune conversion regexp2 sees.
func runeOffsets(s string, n int) []int {
	offsets := make([]int, 0, n+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

// expandTemplate writes tmpl with group references resolved against m.
// Syntax follows java.util.regex appendReplacement: $n takes as many
// digits as still name an existing group, ${name} selects a named group,
// and a backslash makes the next character literal.
func expandTemplate(b *strings.Builder, tmpl string, m *regexp2.Match) error {
	groupCount := len(m.Groups())

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '\\':
			i++
			if i >= len(tmpl) {
				return errors.New("template: character to be escaped is missing")
			}
			b.WriteByte(tmpl[i])

		case '$':
			i++
			if i >= len(tmpl) {
				return errors.New("template: group index is missing after '$'")
			}

			if tmpl[i] == '{' {
				end := strings.IndexByte(tmpl[i:], '}')
				if end < 0 {
					return errors.New("template: named group is missing trailing '}'")
				}
				name := tmpl[i+1 : i+end]
				if name == "" {
					return errors.New("template: named group has empty name")
				}
				g := m.GroupByName(name)
				if g == nil {
					return errors.Errorf("template: no group with name {%s}", name)
				}
				b.WriteString(g.String())
				i += end
				continue
			}

			if !isDigit(tmpl[i]) {
				return errors.Errorf("template: illegal group reference '$%c'", tmpl[i])
			}
			num := int(tmpl[i] - '0')
			for i+1 < len(tmpl) && isDigit(tmpl[i+1]) {
				next := num*10 + int(tmpl[i+1]-'0')
				if next >= groupCount {
					break
				}
				num = next
				i++
			}
			if num >= groupCount {
				return errors.Errorf("template: no group %d", num)
			}
			g := m.GroupByNumber(num)
			if g == nil {
				return errors.Errorf("template: no group %d", num)
			}
			b.WriteString(g.String())

		default:
			b.WriteByte(c)
		}
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
