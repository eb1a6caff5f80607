package domain

import "fmt"

// VotingMethod is the closed set of weighting methods. Every switch over it
// must be exhaustive; there is no extension point.
type VotingMethod string

const (
	// MethodOneAcctOneVote: one whole token per selected option, regardless of balance.
	MethodOneAcctOneVote VotingMethod = "1acct1vote"
	// MethodOneTokenNVote: the full raw weight on every selected option.
	MethodOneTokenNVote VotingMethod = "1tokennvote"
	// MethodOneTokenOneVote: raw weight split evenly across selections.
	MethodOneTokenOneVote VotingMethod = "1token1vote"
	// MethodTokenSquare: squared raw weight split across selections.
	MethodTokenSquare VotingMethod = "1tsquare1v"
	// MethodQuadratic: square root of the per-option share.
	MethodQuadratic VotingMethod = "quadratic"
	// MethodRanked: positional scoring over an ordered preference list.
	MethodRanked VotingMethod = "ranked"
	// MethodGraded: each selection carries its own grade out of 100.
	MethodGraded VotingMethod = "graded"
)

// VotingMethods lists every method in declaration order.
var VotingMethods = []VotingMethod{
	MethodOneAcctOneVote,
	MethodOneTokenNVote,
	MethodOneTokenOneVote,
	MethodTokenSquare,
	MethodQuadratic,
	MethodRanked,
	MethodGraded,
}

// Valid reports whether m is a known method.
func (m VotingMethod) Valid() bool {
	for _, v := range VotingMethods {
		if v == m {
			return true
		}
	}
	return false
}

// ParseVotingMethod validates a method name.
func ParseVotingMethod(s string) (VotingMethod, error) {
	m := VotingMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("voting method %q: %w", s, ErrPolicyViolation)
	}
	return m, nil
}
