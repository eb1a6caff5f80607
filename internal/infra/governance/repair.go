package governance

import (
	"context"
	"errors"
	"time"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/dsa"
	"github.com/tutu-network/trail/internal/infra/weight"
)

// ═══════════════════════════════════════════════════════════════════════════
// Consistency Repair
// ═══════════════════════════════════════════════════════════════════════════
// Workers call these on behalf of any voter. Both are idempotent against
// unchanged state: a second run with nothing to fix processes 0 receipts.

// Rebalance recomputes up to count (all when count ≤ 0) of voter's receipts in registry code
// against the voter's current balance and applies the differences. Only
// receipts on ballots still accepting votes are considered, and only those
// whose weights actually changed count toward count and toward the worker's
// accrued work.
func (e *Engine) Rebalance(ctx context.Context, worker, voter, code string, count int) (int, error) {
	count = e.batch(count)

	var processed int
	attrs := map[string]string{"worker": worker, "voter": voter, "symbol": code}
	err := e.invoke(ctx, "rebalance", attrs, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		processed = 0
		w, err := activeWorker(tx, worker)
		if err != nil {
			return nil, err
		}
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		acct, err := tx.Account(voter, code)
		if errors.Is(err, domain.ErrNotFound) {
			acct = nil
		} else if err != nil {
			return nil, err
		}
		receipts, err := tx.Receipts(voter)
		if err != nil {
			return nil, err
		}

		var volume int64
		for _, rcpt := range receipts {
			if processed >= count {
				break
			}
			if rcpt.Symbol.Code != code {
				continue
			}
			b, err := tx.Ballot(rcpt.Ballot)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			} else if err != nil {
				return nil, err
			}
			if b.Status != domain.BallotVoting || !now.Before(b.EndTime) {
				continue
			}

			raw, err := rawWeight(reg, b, acct)
			if err != nil {
				return nil, err
			}
			next, err := weight.Calculate(b.Method, b.Symbol, rcpt.Selections, raw)
			if err != nil {
				return nil, err
			}
			delta := weight.Delta(rcpt.Weights, next)
			if len(delta) == 0 && raw == rcpt.Raw {
				continue
			}
			if err := applyDelta(b, delta, raw-rcpt.Raw); err != nil {
				return nil, err
			}
			if volume, err = domain.AddAmounts(volume, absDiff(raw, rcpt.Raw)); err != nil {
				return nil, err
			}
			rcpt.Weights, rcpt.Raw = next, raw
			if err := tx.PutReceipt(rcpt); err != nil {
				return nil, err
			}
			if err := tx.PutBallot(b); err != nil {
				return nil, err
			}
			processed++
		}
		if processed == 0 {
			return nil, nil
		}

		if reg.RebalancedVolume.Amount, err = domain.AddAmounts(reg.RebalancedVolume.Amount, volume); err != nil {
			return nil, err
		}
		reg.RebalancedCount += uint32(processed)
		if w.RebalanceVolume[code], err = domain.AddAmounts(w.RebalanceVolume[code], volume); err != nil {
			return nil, err
		}
		w.RebalanceCount[code] += uint32(processed)
		if err := tx.PutRegistry(reg); err != nil {
			return nil, err
		}
		if err := tx.PutWorker(w); err != nil {
			return nil, err
		}
		return []domain.Event{{
			Type:   domain.EventRebalanced,
			Voter:  voter,
			Worker: worker,
			Symbol: code,
			Amount: volume,
			Count:  processed,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// Cleanup deletes up to count (all when count ≤ 0) of voter's receipts that no longer affect any
// live tally, earliest expiration first. A receipt is eligible once it has
// expired, its ballot is gone, or its ballot has left voting. A receipt on
// a still-voting ballot has its weights reversed before deletion.
func (e *Engine) Cleanup(ctx context.Context, worker, voter string, count int) (int, error) {
	count = e.batch(count)

	var processed int
	err := e.invoke(ctx, "cleanupvotes", map[string]string{"worker": worker, "voter": voter}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		processed = 0
		w, err := activeWorker(tx, worker)
		if err != nil {
			return nil, err
		}
		receipts, err := tx.Receipts(voter)
		if err != nil {
			return nil, err
		}

		var volume int64
		queue := dsa.NewExpiryQueue(receipts)
		for processed < count {
			rcpt, ok := queue.Pop()
			if !ok {
				break
			}
			b, err := tx.Ballot(rcpt.Ballot)
			missing := errors.Is(err, domain.ErrNotFound)
			if err != nil && !missing {
				return nil, err
			}
			expired := now.After(rcpt.Expiration)
			if !expired && !missing && b.Status == domain.BallotVoting {
				continue
			}

			if err := tx.DeleteReceipt(voter, rcpt.Ballot); err != nil {
				return nil, err
			}
			processed++
			if missing {
				continue
			}
			if volume, err = domain.AddAmounts(volume, rcpt.Raw); err != nil {
				return nil, err
			}
			if b.Status == domain.BallotVoting {
				if err := retract(b, rcpt); err != nil {
					return nil, err
				}
			}
			if b.CleanedVolume, err = domain.AddAmounts(b.CleanedVolume, rcpt.Raw); err != nil {
				return nil, err
			}
			b.CleanedCount++
			if w.CleanVolume[b.Name], err = domain.AddAmounts(w.CleanVolume[b.Name], rcpt.Raw); err != nil {
				return nil, err
			}
			w.CleanCount[b.Name]++
			if err := tx.PutBallot(b); err != nil {
				return nil, err
			}
		}
		if processed == 0 {
			return nil, nil
		}
		if err := tx.PutWorker(w); err != nil {
			return nil, err
		}
		return []domain.Event{{
			Type:   domain.EventCleaned,
			Voter:  voter,
			Worker: worker,
			Amount: volume,
			Count:  processed,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// batch caps a requested count at MaxBatch. A count of zero or less asks
// for everything, which is still bounded by MaxBatch.
func (e *Engine) batch(count int) int {
	if count <= 0 {
		return e.cfg.MaxBatch
	}
	return min(count, e.cfg.MaxBatch)
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
