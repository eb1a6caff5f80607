// Package weight turns a voter's raw weight into per-option tally weights.
//
// Calculate is a pure function: no state, no clock, no I/O. Rebalance re-runs
// it against fresh account state and applies the difference, so the same
// inputs must always produce the same mapping.
//
// Chosen constants (u = 10^precision, n = number of selections):
//
//	1acct1vote   u per option
//	1tokennvote  raw per option
//	1token1vote  raw/n per option, remainder units to the first options
//	1tsquare1v   raw²/u/n per option (square taken in whole tokens)
//	quadratic    √(raw·u/n) per option (root taken in whole tokens)
//	ranked       raw·(n−i)/n for rank i, i = 0 is the top preference
//	graded       raw·grade/100, grade ∈ [0, 100]
package weight

import (
	"fmt"
	"math/big"

	"github.com/tutu-network/trail/internal/domain"
)

// MaxGrade is the top score a graded selection may carry.
const MaxGrade = 100

// Calculate maps selections to their weight contribution in base units of sym.
func Calculate(method domain.VotingMethod, sym domain.Symbol, selections []domain.Selection, raw int64) (map[string]int64, error) {
	if err := validate(selections, raw); err != nil {
		return nil, err
	}

	n := int64(len(selections))
	out := make(map[string]int64, n)

	switch method {
	case domain.MethodOneAcctOneVote:
		for _, s := range selections {
			out[s.Option] = sym.Unit()
		}

	case domain.MethodOneTokenNVote:
		for _, s := range selections {
			out[s.Option] = raw
		}

	case domain.MethodOneTokenOneVote:
		share, rem := raw/n, raw%n
		for i, s := range selections {
			w := share
			if int64(i) < rem {
				w++
			}
			out[s.Option] = w
		}

	case domain.MethodTokenSquare:
		sq := new(big.Int).SetInt64(raw)
		sq.Mul(sq, sq)
		sq.Quo(sq, new(big.Int).Mul(big.NewInt(sym.Unit()), big.NewInt(n)))
		if !sq.IsInt64() {
			return nil, fmt.Errorf("%s weight for %d overflows: %w", method, raw, domain.ErrArithmetic)
		}
		for _, s := range selections {
			out[s.Option] = sq.Int64()
		}

	case domain.MethodQuadratic:
		q := new(big.Int).Mul(big.NewInt(raw), big.NewInt(sym.Unit()))
		q.Quo(q, big.NewInt(n))
		q.Sqrt(q)
		for _, s := range selections {
			out[s.Option] = q.Int64()
		}

	case domain.MethodRanked:
		for i, s := range selections {
			out[s.Option] = scale(raw, n-int64(i), n)
		}

	case domain.MethodGraded:
		for _, s := range selections {
			if s.Grade > MaxGrade {
				return nil, fmt.Errorf("grade %d for %q exceeds %d: %w", s.Grade, s.Option, MaxGrade, domain.ErrPolicyViolation)
			}
			out[s.Option] = scale(raw, int64(s.Grade), MaxGrade)
		}

	default:
		return nil, fmt.Errorf("voting method %q: %w", method, domain.ErrPolicyViolation)
	}

	return out, nil
}

// Delta returns next − prev per option over the union of both key sets.
// Options whose weight is unchanged are omitted.
func Delta(prev, next map[string]int64) map[string]int64 {
	d := make(map[string]int64)
	for opt, w := range next {
		if diff := w - prev[opt]; diff != 0 {
			d[opt] = diff
		}
	}
	for opt, w := range prev {
		if _, ok := next[opt]; !ok && w != 0 {
			d[opt] = -w
		}
	}
	return d
}

// validate checks the calculator preconditions shared by every method.
func validate(selections []domain.Selection, raw int64) error {
	if raw < 0 {
		return fmt.Errorf("raw weight %d is negative: %w", raw, domain.ErrArithmetic)
	}
	if len(selections) == 0 {
		return fmt.Errorf("no options selected: %w", domain.ErrPolicyViolation)
	}
	seen := make(map[string]struct{}, len(selections))
	for _, s := range selections {
		if s.Option == "" {
			return fmt.Errorf("empty option name: %w", domain.ErrPolicyViolation)
		}
		if _, dup := seen[s.Option]; dup {
			return fmt.Errorf("option %q selected twice: %w", s.Option, domain.ErrPolicyViolation)
		}
		seen[s.Option] = struct{}{}
	}
	return nil
}

// scale computes floor(v·num/den) without intermediate overflow.
// Callers guarantee num ≤ den, so the result fits in int64.
func scale(v, num, den int64) int64 {
	r := new(big.Int).Mul(big.NewInt(v), big.NewInt(num))
	return r.Quo(r, big.NewInt(den)).Int64()
}
