package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveTimeout(t *testing.T) {
	const def = 7 * time.Second
	tests := []struct {
		name      string
		timeoutMs int64
		want      time.Duration
	}{
		{"positive", 250, 250 * time.Millisecond},
		{"zero falls back", 0, def},
		{"negative falls back", -5, def},
		{"at cap", MaxTimeout.Milliseconds(), MaxTimeout},
		{"over cap", MaxTimeout.Milliseconds() + 1, MaxTimeout},
		{"would overflow", math.MaxInt64, MaxTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{TimeoutMs: tt.timeoutMs}
			assert.Equal(t, tt.want, r.EffectiveTimeout(def))
		})
	}
}

func TestNewRule(t *testing.T) {
	r := NewRule("ads", "sponsored", false)
	assert.True(t, r.IsEnabled)
	assert.False(t, r.IsRegex)
	assert.Equal(t, int64(3000), r.TimeoutMs)
	assert.Empty(t, r.ID)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "ads", Rule{Name: "ads", Pattern: "x"}.Label())
	assert.Equal(t, "x", Rule{Pattern: "x"}.Label())
}

func TestRuleIDs(t *testing.T) {
	a := NewRuleID()
	b := NewRuleID()
	assert.NotEqual(t, a, b)

	parsed, err := ParseRuleID(string(a))
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseRuleID("not-a-uuid")
	assert.Error(t, err)

	ts := RuleIDTime(a)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
	assert.True(t, RuleIDTime("bogus").IsZero())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...(truncated)", Truncate("abc", 2))
	assert.Equal(t, "a...(truncated)", Truncate("aéb", 2), "multi-byte rune is not split")
}
