package weight

import (
	"errors"
	"math"
	"testing"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

var gov = domain.NewSymbol("GOV", 4)

func sel(opts ...string) []domain.Selection {
	out := make([]domain.Selection, len(opts))
	for i, o := range opts {
		out[i] = domain.Selection{Option: o}
	}
	return out
}

func mustCalc(t *testing.T, m domain.VotingMethod, s []domain.Selection, raw int64) map[string]int64 {
	t.Helper()
	got, err := Calculate(m, gov, s, raw)
	if err != nil {
		t.Fatalf("Calculate(%s, %d) error: %v", m, raw, err)
	}
	return got
}

// ─── Per-Method Contracts ──────────────────────────────────────────────────

func TestCalculate_Methods(t *testing.T) {
	tests := []struct {
		name   string
		method domain.VotingMethod
		sel    []domain.Selection
		raw    int64
		want   map[string]int64
	}{
		{"1acct1vote ignores balance", domain.MethodOneAcctOneVote, sel("a", "b"), 5, map[string]int64{"a": 10000, "b": 10000}},
		{"1tokennvote duplicates", domain.MethodOneTokenNVote, sel("a", "b"), 1_000_000, map[string]int64{"a": 1_000_000, "b": 1_000_000}},
		{"1token1vote even split", domain.MethodOneTokenOneVote, sel("a", "b"), 1_000_000, map[string]int64{"a": 500_000, "b": 500_000}},
		{"1token1vote remainder to first", domain.MethodOneTokenOneVote, sel("a", "b", "c"), 10, map[string]int64{"a": 4, "b": 3, "c": 3}},
		{"1tsquare1v", domain.MethodTokenSquare, sel("a", "b"), 1_000_000, map[string]int64{"a": 50_000_000, "b": 50_000_000}},
		{"quadratic single", domain.MethodQuadratic, sel("a"), 1_000_000, map[string]int64{"a": 100_000}},
		{"quadratic four ways", domain.MethodQuadratic, sel("a", "b", "c", "d"), 1_000_000, map[string]int64{"a": 50_000, "b": 50_000, "c": 50_000, "d": 50_000}},
		{"ranked positional", domain.MethodRanked, sel("x", "y", "z"), 900, map[string]int64{"x": 900, "y": 600, "z": 300}},
		{
			"graded",
			domain.MethodGraded,
			[]domain.Selection{{Option: "a", Grade: 100}, {Option: "b", Grade: 50}, {Option: "c", Grade: 0}},
			1000,
			map[string]int64{"a": 1000, "b": 500, "c": 0},
		},
		{"zero raw weight", domain.MethodOneTokenOneVote, sel("a"), 0, map[string]int64{"a": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustCalc(t, tt.method, tt.sel, tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d options, want %d: %v", len(got), len(tt.want), got)
			}
			for opt, w := range tt.want {
				if got[opt] != w {
					t.Errorf("weight[%s] = %d, want %d", opt, got[opt], w)
				}
			}
		})
	}
}

// ─── Properties ─────────────────────────────────────────────────────────────

func TestCalculate_NeverNegativeAndReproducible(t *testing.T) {
	raws := []int64{0, 1, 7, 999, 1_000_000, 123_456_789}
	selections := [][]domain.Selection{
		sel("a"),
		sel("a", "b"),
		{{Option: "a", Grade: 3}, {Option: "b", Grade: 97}, {Option: "c", Grade: 50}},
	}

	for _, m := range domain.VotingMethods {
		for _, raw := range raws {
			for _, s := range selections {
				first := mustCalc(t, m, s, raw)
				second := mustCalc(t, m, s, raw)
				for opt, w := range first {
					if w < 0 {
						t.Errorf("%s raw=%d: weight[%s] = %d is negative", m, raw, opt, w)
					}
					if second[opt] != w {
						t.Errorf("%s raw=%d: not reproducible for %s (%d vs %d)", m, raw, opt, w, second[opt])
					}
				}
			}
		}
	}
}

func TestCalculate_OneTokenOneVote_SumIsExact(t *testing.T) {
	for _, raw := range []int64{0, 1, 2, 10, 99, 1_000_001, math.MaxInt64} {
		for n := 1; n <= 7; n++ {
			opts := make([]string, n)
			for i := range opts {
				opts[i] = string(rune('a' + i))
			}
			got := mustCalc(t, domain.MethodOneTokenOneVote, sel(opts...), raw)
			var sum int64
			for _, w := range got {
				sum += w
			}
			if sum != raw {
				t.Errorf("raw=%d n=%d: sum = %d, want %d", raw, n, sum, raw)
			}
		}
	}
}

func TestCalculate_RankedIsDescending(t *testing.T) {
	got := mustCalc(t, domain.MethodRanked, sel("first", "second", "third", "fourth"), 1_000_000)
	order := []string{"first", "second", "third", "fourth"}
	for i := 1; i < len(order); i++ {
		if got[order[i]] >= got[order[i-1]] {
			t.Errorf("%s (%d) should weigh less than %s (%d)", order[i], got[order[i]], order[i-1], got[order[i-1]])
		}
	}
}

// ─── Preconditions ──────────────────────────────────────────────────────────

func TestCalculate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method domain.VotingMethod
		sel    []domain.Selection
		raw    int64
		want   error
	}{
		{"no selections", domain.MethodOneTokenOneVote, nil, 10, domain.ErrPolicyViolation},
		{"duplicate option", domain.MethodOneTokenOneVote, sel("a", "a"), 10, domain.ErrPolicyViolation},
		{"empty option", domain.MethodOneTokenOneVote, sel(""), 10, domain.ErrPolicyViolation},
		{"negative raw", domain.MethodOneTokenOneVote, sel("a"), -1, domain.ErrArithmetic},
		{"grade too high", domain.MethodGraded, []domain.Selection{{Option: "a", Grade: 101}}, 10, domain.ErrPolicyViolation},
		{"unknown method", domain.VotingMethod("plurality"), sel("a"), 10, domain.ErrPolicyViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.method, gov, tt.sel, tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCalculate_TokenSquareOverflow(t *testing.T) {
	whole := domain.NewSymbol("WHOLE", 0)
	_, err := Calculate(domain.MethodTokenSquare, whole, sel("a"), math.MaxInt64)
	if !errors.Is(err, domain.ErrArithmetic) {
		t.Fatalf("error = %v, want ErrArithmetic", err)
	}
}

// ─── Delta ──────────────────────────────────────────────────────────────────

func TestDelta(t *testing.T) {
	prev := map[string]int64{"a": 100, "b": 50, "c": 10}
	next := map[string]int64{"a": 40, "b": 50, "d": 5}

	d := Delta(prev, next)
	want := map[string]int64{"a": -60, "c": -10, "d": 5}
	if len(d) != len(want) {
		t.Fatalf("Delta = %v, want %v", d, want)
	}
	for k, v := range want {
		if d[k] != v {
			t.Errorf("Delta[%s] = %d, want %d", k, d[k], v)
		}
	}

	if len(Delta(next, next)) != 0 {
		t.Error("Delta of identical maps should be empty")
	}
}
