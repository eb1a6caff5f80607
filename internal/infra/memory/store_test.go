package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

var gov = domain.NewSymbol("GOV", 4)

func testRegistry() *domain.Registry {
	return &domain.Registry{
		Supply:    domain.NewAsset(0, gov),
		MaxSupply: domain.NewAsset(1_000_000_0000, gov),
		Access:    domain.AccessPublic,
		Manager:   "manager",
		Settings:  map[string]bool{},
	}
}

// ─── Commit / Rollback ──────────────────────────────────────────────────────

func TestUpdate_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Update(ctx, func(tx domain.Tx) error {
		return tx.PutRegistry(testRegistry())
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = s.View(ctx, func(tx domain.Tx) error {
		r, err := tx.Registry("GOV")
		if err != nil {
			return err
		}
		if r.Manager != "manager" {
			t.Errorf("manager = %q, want %q", r.Manager, "manager")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx domain.Tx) error {
		if err := tx.PutRegistry(testRegistry()); err != nil {
			return err
		}
		if err := tx.PutReceipt(&domain.VoteReceipt{Voter: "alice", Ballot: "b1", Weights: map[string]int64{"a": 1}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	s.View(ctx, func(tx domain.Tx) error {
		if _, err := tx.Registry("GOV"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("registry should not exist after rollback, err = %v", err)
		}
		rs, _ := tx.Receipts("alice")
		if len(rs) != 0 {
			t.Errorf("receipts = %d after rollback, want 0", len(rs))
		}
		return nil
	})
}

func TestView_RejectsWrites(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx domain.Tx) error {
		return tx.PutWorker(domain.NewWorker("w", time.Now()))
	})
	if !errors.Is(err, errReadOnly) {
		t.Fatalf("error = %v, want errReadOnly", err)
	}
}

func TestUpdate_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(tx domain.Tx) error { called = true; return nil })
	if err == nil || called {
		t.Fatal("Update should refuse a canceled context without running fn")
	}
}

// ─── Copy Isolation ─────────────────────────────────────────────────────────

func TestGetters_ReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Update(ctx, func(tx domain.Tx) error {
		return tx.PutBallot(&domain.Ballot{Name: "b1", Options: map[string]int64{"yes": 10}})
	})

	s.Update(ctx, func(tx domain.Tx) error {
		b, _ := tx.Ballot("b1")
		b.Options["yes"] = 999 // not Put back
		return nil
	})

	s.View(ctx, func(tx domain.Tx) error {
		b, _ := tx.Ballot("b1")
		if b.Options["yes"] != 10 {
			t.Errorf("tally = %d, want 10 (mutation leaked into store)", b.Options["yes"])
		}
		return nil
	})
}

// ─── Collections ────────────────────────────────────────────────────────────

func TestReceipts_OrderedByBallot(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Update(ctx, func(tx domain.Tx) error {
		for _, b := range []string{"zeta", "alpha", "mid"} {
			if err := tx.PutReceipt(&domain.VoteReceipt{Voter: "v", Ballot: b}); err != nil {
				return err
			}
		}
		return nil
	})

	s.View(ctx, func(tx domain.Tx) error {
		rs, _ := tx.Receipts("v")
		if len(rs) != 3 {
			t.Fatalf("receipts = %d, want 3", len(rs))
		}
		want := []string{"alpha", "mid", "zeta"}
		for i, r := range rs {
			if r.Ballot != want[i] {
				t.Errorf("receipt[%d] = %q, want %q", i, r.Ballot, want[i])
			}
		}
		return nil
	})
}

func TestDeleteBallotReceipts(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Update(ctx, func(tx domain.Tx) error {
		for _, v := range []string{"alice", "bob"} {
			for _, b := range []string{"b1", "b2"} {
				if err := tx.PutReceipt(&domain.VoteReceipt{Voter: v, Ballot: b}); err != nil {
					return err
				}
			}
		}
		return tx.PutReceipt(&domain.VoteReceipt{Voter: "carol", Ballot: "b1"})
	})

	var n int
	err := s.Update(ctx, func(tx domain.Tx) error {
		var err error
		n, err = tx.DeleteBallotReceipts("b1")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	s.View(ctx, func(tx domain.Tx) error {
		for voter, want := range map[string]int{"alice": 1, "bob": 1, "carol": 0} {
			rs, _ := tx.Receipts(voter)
			if len(rs) != want {
				t.Errorf("%s receipts = %d, want %d", voter, len(rs), want)
			}
			for _, r := range rs {
				if r.Ballot == "b1" {
					t.Errorf("%s still holds a b1 receipt", voter)
				}
			}
		}
		if _, err := tx.DeleteBallotReceipts("b2"); err == nil {
			t.Error("view should reject DeleteBallotReceipts")
		}
		return nil
	})
}

func TestDelete_Missing(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), func(tx domain.Tx) error {
		return tx.DeleteReceipt("nobody", "nothing")
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestConfig_DefaultsUntilSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.View(ctx, func(tx domain.Tx) error {
		cfg, _ := tx.Config()
		if cfg.MaxVoteReceipts != domain.DefaultLedgerConfig().MaxVoteReceipts {
			t.Errorf("default MaxVoteReceipts = %d", cfg.MaxVoteReceipts)
		}
		return nil
	})

	s.Update(ctx, func(tx domain.Tx) error {
		cfg := domain.DefaultLedgerConfig()
		cfg.MaxVoteReceipts = 3
		return tx.PutConfig(cfg)
	})
	s.View(ctx, func(tx domain.Tx) error {
		cfg, _ := tx.Config()
		if cfg.MaxVoteReceipts != 3 {
			t.Errorf("MaxVoteReceipts = %d, want 3", cfg.MaxVoteReceipts)
		}
		return nil
	})
}
