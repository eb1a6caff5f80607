package governance

import (
	"context"
	"errors"
	"time"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/weight"
)

// ─── Vote Casting ───────────────────────────────────────────────────────────

// CastVote records or replaces voter's selections on a voting ballot. A
// re-cast reverses the previous receipt's weights before applying the new
// ones, and requires the ballot to be revotable.
func (e *Engine) CastVote(ctx context.Context, voter, name string, selections []domain.Selection) (*domain.VoteReceipt, error) {
	var out *domain.VoteReceipt
	err := e.invoke(ctx, "castvote", map[string]string{"ballot": name, "voter": voter}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := tx.Ballot(name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotVoting {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not voting", name, b.Status)
		}
		if !now.Before(b.EndTime) {
			return nil, errorf(domain.ErrInvalidState, "ballot %s ended at %s", name, b.EndTime.Format(time.RFC3339))
		}
		if err := checkSelections(b, selections); err != nil {
			return nil, err
		}
		reg, err := tx.Registry(b.Symbol.Code)
		if err != nil {
			return nil, err
		}
		acct, err := tx.Account(voter, b.Symbol.Code)
		if err != nil {
			return nil, err
		}
		cfg, err := tx.Config()
		if err != nil {
			return nil, err
		}

		prev, err := tx.Receipt(voter, name)
		switch {
		case err == nil:
			if !b.Setting(domain.SettingRevotable) {
				return nil, errorf(domain.ErrPolicyViolation, "ballot %s is not revotable", name)
			}
		case errors.Is(err, domain.ErrNotFound):
			prev = nil
			existing, err := tx.Receipts(voter)
			if err != nil {
				return nil, err
			}
			if len(existing) >= cfg.MaxVoteReceipts {
				return nil, errorf(domain.ErrPolicyViolation, "%s holds %d vote receipts; clean up expired ones first", voter, len(existing))
			}
		default:
			return nil, err
		}

		raw, err := rawWeight(reg, b, acct)
		if err != nil {
			return nil, err
		}
		weights, err := weight.Calculate(b.Method, b.Symbol, selections, raw)
		if err != nil {
			return nil, err
		}

		var prevWeights map[string]int64
		var prevRaw int64
		if prev != nil {
			prevWeights, prevRaw = prev.Weights, prev.Raw
		}
		if err := applyDelta(b, weight.Delta(prevWeights, weights), raw-prevRaw); err != nil {
			return nil, err
		}
		if prev == nil {
			b.TotalVoters++
		}

		out = &domain.VoteReceipt{
			Voter:      voter,
			Ballot:     name,
			Symbol:     b.Symbol,
			Selections: append([]domain.Selection(nil), selections...),
			Weights:    weights,
			Raw:        raw,
			Expiration: b.EndTime.Add(cfg.BallotCooldown),
		}
		if err := tx.PutReceipt(out); err != nil {
			return nil, err
		}
		if err := tx.PutBallot(b); err != nil {
			return nil, err
		}
		return []domain.Event{{
			Type:   domain.EventVoteCast,
			Ballot: name,
			Voter:  voter,
			Symbol: b.Symbol.Code,
			Amount: raw,
			Data:   map[string]string{"method": string(b.Method)},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// Unvote retracts voter's receipt from a voting ballot.
func (e *Engine) Unvote(ctx context.Context, voter, name string) error {
	return e.invoke(ctx, "unvote", map[string]string{"ballot": name, "voter": voter}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := tx.Ballot(name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotVoting {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not voting", name, b.Status)
		}
		if !now.Before(b.EndTime) {
			return nil, errorf(domain.ErrInvalidState, "ballot %s ended at %s", name, b.EndTime.Format(time.RFC3339))
		}
		rcpt, err := tx.Receipt(voter, name)
		if err != nil {
			return nil, err
		}
		if err := retract(b, rcpt); err != nil {
			return nil, err
		}
		if err := tx.DeleteReceipt(voter, name); err != nil {
			return nil, err
		}
		if err := tx.PutBallot(b); err != nil {
			return nil, err
		}
		return []domain.Event{{Type: domain.EventVoteRetracted, Ballot: name, Voter: voter, Symbol: b.Symbol.Code, Amount: rcpt.Raw}}, nil
	})
}

// ─── Tally Arithmetic ───────────────────────────────────────────────────────

// checkSelections validates option membership, count and uniqueness.
func checkSelections(b *domain.Ballot, selections []domain.Selection) error {
	if len(selections) == 0 {
		return errorf(domain.ErrPolicyViolation, "no options selected")
	}
	if len(selections) > b.MaxOptions {
		return errorf(domain.ErrPolicyViolation, "%d options selected, ballot %s allows %d", len(selections), b.Name, b.MaxOptions)
	}
	seen := make(map[string]bool, len(selections))
	for _, s := range selections {
		if !b.HasOption(s.Option) {
			return errorf(domain.ErrNotFound, "option %q on ballot %s", s.Option, b.Name)
		}
		if seen[s.Option] {
			return errorf(domain.ErrPolicyViolation, "option %q selected twice", s.Option)
		}
		seen[s.Option] = true
	}
	return nil
}

// rawWeight is the voter's staked balance when the registry is stakeable and
// the ballot counts stake, and the liquid balance otherwise.
func rawWeight(reg *domain.Registry, b *domain.Ballot, acct *domain.Account) (int64, error) {
	if acct == nil {
		return 0, nil
	}
	raw := acct.Balance.Amount
	if reg.Setting(domain.SettingStakeable) && b.Setting(domain.SettingUseStake) {
		raw = acct.Staked.Amount
	}
	if raw < 0 {
		return 0, errorf(domain.ErrArithmetic, "negative raw weight for %s", acct.Voter)
	}
	return raw, nil
}

// applyDelta adds per-option deltas and the raw-weight change to b's tallies.
// A tally can never go negative.
func applyDelta(b *domain.Ballot, delta map[string]int64, rawDelta int64) error {
	for opt, d := range delta {
		cur, ok := b.Options[opt]
		if !ok {
			return errorf(domain.ErrNotFound, "option %q on ballot %s", opt, b.Name)
		}
		next, err := domain.AddAmounts(cur, d)
		if err != nil {
			return err
		}
		if next < 0 {
			return errorf(domain.ErrArithmetic, "tally for %q on ballot %s would go negative", opt, b.Name)
		}
		b.Options[opt] = next
	}
	total, err := domain.AddAmounts(b.TotalVotes, rawDelta)
	if err != nil {
		return err
	}
	if total < 0 {
		return errorf(domain.ErrArithmetic, "total votes on ballot %s would go negative", b.Name)
	}
	b.TotalVotes = total
	return nil
}

// retract removes a receipt's weights and raw votes from b. TotalVoters
// never decreases while a ballot is voting.
func retract(b *domain.Ballot, rcpt *domain.VoteReceipt) error {
	return applyDelta(b, weight.Delta(rcpt.Weights, nil), -rcpt.Raw)
}
