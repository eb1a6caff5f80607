package governance

import (
	"context"
	"errors"
	"log"
	"math/big"
	"strconv"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Worker Incentive Ledger
// ═══════════════════════════════════════════════════════════════════════════
// Workers accrue volume and count for repair work: rebalances per registry
// symbol, cleanups per ballot. ClaimPayment converts the work attributable
// to one registry into a payment from that registry's fee reserve.

// RegisterWorker enrolls an active worker with empty accumulators.
func (e *Engine) RegisterWorker(ctx context.Context, name string) (*domain.Worker, error) {
	if name == "" {
		return nil, errorf(domain.ErrPolicyViolation, "worker name is required")
	}
	var out *domain.Worker
	err := e.invoke(ctx, "regworker", map[string]string{"worker": name}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		if _, err := tx.Worker(name); err == nil {
			return nil, errorf(domain.ErrPolicyViolation, "worker %s already registered", name)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		out = domain.NewWorker(name, now)
		return nil, tx.PutWorker(out)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// UnregisterWorker removes a worker. Unpaid work blocks removal unless
// force is set, in which case it is forfeited.
func (e *Engine) UnregisterWorker(ctx context.Context, name string, force bool) error {
	return e.invoke(ctx, "unregworker", map[string]string{"worker": name}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		w, err := tx.Worker(name)
		if err != nil {
			return nil, err
		}
		if w.HasUnpaidWork() && !force {
			return nil, errorf(domain.ErrPolicyViolation, "worker %s has unclaimed work", name)
		}
		return nil, tx.DeleteWorker(name)
	})
}

// SuspendWorker bars a worker from repair work and payment.
func (e *Engine) SuspendWorker(ctx context.Context, name string) error {
	return e.setStanding(ctx, "suspendworker", name, domain.StandingActive, domain.StandingSuspended)
}

// ReinstateWorker returns a suspended worker to active standing.
func (e *Engine) ReinstateWorker(ctx context.Context, name string) error {
	return e.setStanding(ctx, "reinstateworker", name, domain.StandingSuspended, domain.StandingActive)
}

func (e *Engine) setStanding(ctx context.Context, action, name string, from, to domain.Standing) error {
	return e.invoke(ctx, action, map[string]string{"worker": name}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		w, err := tx.Worker(name)
		if err != nil {
			return nil, err
		}
		if w.Standing != from {
			return nil, errorf(domain.ErrInvalidState, "worker %s is %s", name, w.Standing)
		}
		w.Standing = to
		return nil, tx.PutWorker(w)
	})
}

func activeWorker(tx domain.Tx, name string) (*domain.Worker, error) {
	w, err := tx.Worker(name)
	if err != nil {
		return nil, err
	}
	if w.Standing != domain.StandingActive {
		return nil, errorf(domain.ErrPolicyViolation, "worker %s is %s", name, w.Standing)
	}
	return w, nil
}

// ─── Payment ────────────────────────────────────────────────────────────────

// ClaimPayment pays worker for its unpaid work on registry code and resets
// the claimed accumulators.
//
// Cleanup work on ballots that have since been deleted can no longer be
// attributed to a registry and is dropped at the next claim.
func (e *Engine) ClaimPayment(ctx context.Context, worker, code string) (domain.Asset, error) {
	var paid domain.Asset
	err := e.invoke(ctx, "claimpayment", map[string]string{"worker": worker, "symbol": code}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		w, err := activeWorker(tx, worker)
		if err != nil {
			return nil, err
		}
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		cfg, err := tx.Config()
		if err != nil {
			return nil, err
		}

		volume, count := w.RebalanceVolume[code], int64(w.RebalanceCount[code])
		var claimed []string
		for name, n := range w.CleanCount {
			b, err := tx.Ballot(name)
			if errors.Is(err, domain.ErrNotFound) {
				claimed = append(claimed, name)
				continue
			} else if err != nil {
				return nil, err
			}
			if b.Symbol.Code != code {
				continue
			}
			if volume, err = domain.AddAmounts(volume, w.CleanVolume[name]); err != nil {
				return nil, err
			}
			count += int64(n)
			claimed = append(claimed, name)
		}

		owed, err := owedFor(cfg.Payment, volume, count)
		if err != nil {
			return nil, err
		}
		if owed == 0 {
			return nil, errorf(domain.ErrPolicyViolation, "worker %s has nothing to claim in %s", worker, code)
		}
		amount := owed
		if reg.FeeReserve.Amount < owed {
			if !cfg.Payment.AllowPartial || reg.FeeReserve.Amount == 0 {
				return nil, errorf(domain.ErrPolicyViolation, "fee reserve %s cannot cover %d owed; claim deferred", reg.FeeReserve, owed)
			}
			amount = reg.FeeReserve.Amount
		}
		paid = domain.NewAsset(amount, reg.Symbol())

		acct, err := tx.Account(worker, code)
		if errors.Is(err, domain.ErrNotFound) {
			if err := openAccount(tx, reg, worker); err != nil {
				return nil, err
			}
			if acct, err = tx.Account(worker, code); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		if acct.Balance, err = acct.Balance.Add(paid); err != nil {
			return nil, err
		}
		if reg.FeeReserve, err = reg.FeeReserve.Sub(paid); err != nil {
			return nil, err
		}

		delete(w.RebalanceVolume, code)
		delete(w.RebalanceCount, code)
		for _, name := range claimed {
			delete(w.CleanVolume, name)
			delete(w.CleanCount, name)
		}
		w.LastPayment = now

		if err := tx.PutAccount(acct); err != nil {
			return nil, err
		}
		if err := tx.PutRegistry(reg); err != nil {
			return nil, err
		}
		if err := tx.PutWorker(w); err != nil {
			return nil, err
		}
		log.Printf("[governance] worker %s paid %s (owed %d)", worker, paid, owed)
		return []domain.Event{{
			Type:   domain.EventWorkerPaid,
			Worker: worker,
			Symbol: code,
			Amount: amount,
			Count:  int(count),
			Data:   map[string]string{"owed": strconv.FormatInt(owed, 10)},
		}}, nil
	})
	if err != nil {
		return domain.Asset{}, err
	}
	return paid, nil
}

// owedFor prices volume and count under policy:
//
//	volume × RatePerVolumeBps / 10000 + count × RatePerCount
func owedFor(policy domain.PaymentPolicy, volume, count int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(volume), big.NewInt(policy.RatePerVolumeBps))
	v.Quo(v, big.NewInt(10_000))
	c := new(big.Int).Mul(big.NewInt(count), big.NewInt(policy.RatePerCount))
	v.Add(v, c)
	if !v.IsInt64() {
		return 0, errorf(domain.ErrArithmetic, "owed amount overflows")
	}
	return v.Int64(), nil
}
