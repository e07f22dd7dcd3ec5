package formula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/fleetpay-go/internal/formula"
)

func TestEvaluate(t *testing.T) {
	vars := formula.Vars{Orders: 120, Hours: 80, Acceptance: 92.5, RidersCount: 4}

	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"bare rate", "2.5", 300},
		{"rate per order suffix", "3/order", 360},
		{"orders expression", "orders * 2 + 100", 340},
		{"hours and riders", "hours * 1.5 + ridersCount * 50", 320},
		{"conditional", "acceptance >= 90 ? orders * 3 : orders * 2", 360},
		{"integer literal", "500", 60000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formula.Evaluate(tt.src, vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	vars := formula.Vars{Orders: 10}

	for _, src := range []string{
		"",
		"   ",
		"orders *",
		"salary * 2",
		"len('abc')",
		"orders / 0",
		"'text'",
	} {
		_, err := formula.Evaluate(src, vars)
		assert.Error(t, err, "expected %q to fail", src)
	}
}

func TestCompile_Rate(t *testing.T) {
	f, err := formula.Compile(" 1.75 ")
	require.NoError(t, err)
	rate, ok := f.Rate()
	assert.True(t, ok)
	assert.Equal(t, 1.75, rate)
	assert.Equal(t, "1.75", f.Source())

	f, err = formula.Compile("orders")
	require.NoError(t, err)
	_, ok = f.Rate()
	assert.False(t, ok)
}
