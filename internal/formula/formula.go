// Package formula evaluates commission formula descriptors.
//
// A descriptor is either a bare number, read as a per-order rate, or an
// arithmetic expression over a closed set of variables. Function calls and
// builtins are not available.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Vars are the only names a formula may reference.
type Vars struct {
	Orders      float64 `expr:"orders"`
	Hours       float64 `expr:"hours"`
	Acceptance  float64 `expr:"acceptance"`
	RidersCount float64 `expr:"ridersCount"`
}

// ErrEmpty is returned for a blank descriptor.
var ErrEmpty = errors.New("formula is empty")

// Formula is a compiled descriptor.
type Formula struct {
	source string
	rate   *float64
	prog   *vm.Program
}

// Compile parses a descriptor.
func Compile(source string) (*Formula, error) {
	src := strings.TrimSpace(source)
	if src == "" {
		return nil, ErrEmpty
	}

	if rate, err := strconv.ParseFloat(strings.TrimSuffix(src, "/order"), 64); err == nil {
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			return nil, fmt.Errorf("invalid rate %q", src)
		}
		return &Formula{source: src, rate: &rate}, nil
	}

	prog, err := expr.Compile(src,
		expr.Env(Vars{}),
		expr.AsFloat64(),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling formula %q: %w", src, err)
	}
	return &Formula{source: src, prog: prog}, nil
}

// Source returns the trimmed descriptor.
func (f *Formula) Source() string { return f.source }

// Rate returns the per-order rate of a bare-number descriptor.
func (f *Formula) Rate() (float64, bool) {
	if f.rate == nil {
		return 0, false
	}
	return *f.rate, true
}

// Eval computes the commission. Non-finite results are errors.
func (f *Formula) Eval(v Vars) (float64, error) {
	if f.rate != nil {
		return *f.rate * v.Orders, nil
	}

	out, err := expr.Run(f.prog, v)
	if err != nil {
		return 0, fmt.Errorf("evaluating formula %q: %w", f.source, err)
	}
	result, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("formula %q returned %T", f.source, out)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("formula %q is not finite", f.source)
	}
	return result, nil
}

// Evaluate compiles and evaluates in one step.
func Evaluate(source string, v Vars) (float64, error) {
	f, err := Compile(source)
	if err != nil {
		return 0, err
	}
	return f.Eval(v)
}
