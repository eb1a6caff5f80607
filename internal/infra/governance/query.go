package governance

import (
	"context"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Queries ────────────────────────────────────────────────────────────────
// Queries read committed state only and never block on running actions.

// GetBallot returns one ballot.
func (e *Engine) GetBallot(ctx context.Context, name string) (*domain.Ballot, error) {
	var b *domain.Ballot
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		b, err = tx.Ballot(name)
		return err
	})
	return b, err
}

// ListBallots returns ballots ordered by name, optionally filtered by status.
func (e *Engine) ListBallots(ctx context.Context, status domain.BallotStatus) ([]*domain.Ballot, error) {
	var out []*domain.Ballot
	err := e.view(ctx, func(tx domain.Tx) error {
		all, err := tx.Ballots()
		if err != nil {
			return err
		}
		for _, b := range all {
			if status == "" || b.Status == status {
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}

// Results returns the snapshot posted when the ballot closed.
func (e *Engine) Results(ctx context.Context, name string) (*domain.Results, error) {
	b, err := e.GetBallot(ctx, name)
	if err != nil {
		return nil, err
	}
	if b.Results == nil {
		return nil, errorf(domain.ErrNotFound, "results for ballot %s", name)
	}
	return b.Results, nil
}

// GetRegistry returns one registry by symbol code.
func (e *Engine) GetRegistry(ctx context.Context, code string) (*domain.Registry, error) {
	var r *domain.Registry
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		r, err = tx.Registry(code)
		return err
	})
	return r, err
}

// ListRegistries returns every registry ordered by symbol code.
func (e *Engine) ListRegistries(ctx context.Context) ([]*domain.Registry, error) {
	var out []*domain.Registry
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.Registries()
		return err
	})
	return out, err
}

// GetAccount returns voter's account in registry code.
func (e *Engine) GetAccount(ctx context.Context, voter, code string) (*domain.Account, error) {
	var a *domain.Account
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		a, err = tx.Account(voter, code)
		return err
	})
	return a, err
}

// GetReceipt returns voter's receipt on ballot.
func (e *Engine) GetReceipt(ctx context.Context, voter, ballot string) (*domain.VoteReceipt, error) {
	var v *domain.VoteReceipt
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		v, err = tx.Receipt(voter, ballot)
		return err
	})
	return v, err
}

// ListReceipts returns voter's receipts ordered by ballot name.
func (e *Engine) ListReceipts(ctx context.Context, voter string) ([]*domain.VoteReceipt, error) {
	var out []*domain.VoteReceipt
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.Receipts(voter)
		return err
	})
	return out, err
}

// GetWorker returns one worker.
func (e *Engine) GetWorker(ctx context.Context, name string) (*domain.Worker, error) {
	var w *domain.Worker
	err := e.view(ctx, func(tx domain.Tx) error {
		var err error
		w, err = tx.Worker(name)
		return err
	})
	return w, err
}

// Stats summarizes ledger state.
type Stats struct {
	Version     string                      `json:"version"`
	Registries  int                         `json:"registries"`
	Ballots     int                         `json:"ballots"`
	ByStatus    map[domain.BallotStatus]int `json:"by_status"`
	OpenBallots int                         `json:"open_ballots"`
	Voters      int64                       `json:"voters"`
}

// Stats counts registries, ballots by status, and registered voters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s := Stats{ByStatus: make(map[domain.BallotStatus]int)}
	err := e.view(ctx, func(tx domain.Tx) error {
		cfg, err := tx.Config()
		if err != nil {
			return err
		}
		s.Version = cfg.Version
		regs, err := tx.Registries()
		if err != nil {
			return err
		}
		s.Registries = len(regs)
		for _, r := range regs {
			s.Voters += int64(r.Voters)
		}
		ballots, err := tx.Ballots()
		if err != nil {
			return err
		}
		s.Ballots = len(ballots)
		for _, b := range ballots {
			s.ByStatus[b.Status]++
		}
		s.OpenBallots = s.ByStatus[domain.BallotVoting]
		return nil
	})
	return s, err
}
