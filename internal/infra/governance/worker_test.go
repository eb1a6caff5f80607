package governance

import (
	"context"
	"testing"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// setPayment stores a payment policy on top of the default config.
func setPayment(t *testing.T, e *Engine, bps, perCount int64, partial bool) {
	t.Helper()
	cfg := domain.DefaultLedgerConfig()
	cfg.Payment = domain.PaymentPolicy{RatePerVolumeBps: bps, RatePerCount: perCount, AllowPartial: partial}
	must(t, e.SetConfig(context.Background(), cfg))
}

// accrueRebalance leaves worker with 60 volume and 1 count on GOV.
func accrueRebalance(t *testing.T, e *Engine, clk *testClock) {
	t.Helper()
	ctx := context.Background()
	openBallot(t, e, clk, "b1", domain.MethodOneTokenOneVote, 1, "yes")
	_, err := e.CastVote(ctx, alice, "b1", sel("yes"))
	must(t, err)
	must(t, e.Transfer(ctx, alice, bob, gov(60)))
	_, err = e.Rebalance(ctx, worker, alice, "GOV", 1)
	must(t, err)
}

// ─── Registration & Standing ────────────────────────────────────────────────

func TestRegisterWorker(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()

	w, err := e.RegisterWorker(ctx, worker)
	must(t, err)
	if w.Standing != domain.StandingActive || !w.LastPayment.Equal(clk.now()) {
		t.Errorf("worker = %+v", w)
	}
	_, err = e.RegisterWorker(ctx, worker)
	wantKind(t, err, domain.KindPolicyViolation)
	_, err = e.RegisterWorker(ctx, "")
	wantKind(t, err, domain.KindPolicyViolation)
}

func TestWorkerStanding(t *testing.T) {
	e, _ := newTestEngine(t)
	registerWorker(t, e)
	ctx := context.Background()

	wantKind(t, e.ReinstateWorker(ctx, worker), domain.KindInvalidState)
	must(t, e.SuspendWorker(ctx, worker))
	wantKind(t, e.SuspendWorker(ctx, worker), domain.KindInvalidState)
	must(t, e.ReinstateWorker(ctx, worker))
	wantKind(t, e.SuspendWorker(ctx, "nobody"), domain.KindNotFound)

	w, _ := e.GetWorker(ctx, worker)
	if w.Standing != domain.StandingActive {
		t.Errorf("standing = %s, want active", w.Standing)
	}
}

func TestUnregisterWorker_UnpaidWork(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	accrueRebalance(t, e, clk)
	ctx := context.Background()

	wantKind(t, e.UnregisterWorker(ctx, worker, false), domain.KindPolicyViolation)
	must(t, e.UnregisterWorker(ctx, worker, true))
	_, err := e.GetWorker(ctx, worker)
	wantKind(t, err, domain.KindNotFound)
}

// ─── Payment ────────────────────────────────────────────────────────────────

func TestClaimPayment(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	setPayment(t, e, 1000, 2, false) // 10% of volume + 2 per receipt
	accrueRebalance(t, e, clk)
	ctx := context.Background()
	must(t, e.FundReserve(ctx, gov(100)))
	clk.advance(time.Hour)

	paid, err := e.ClaimPayment(ctx, worker, "GOV")
	must(t, err)
	if paid != gov(8) {
		t.Fatalf("paid = %s, want 8", paid)
	}

	acct, err := e.GetAccount(ctx, worker, "GOV")
	must(t, err)
	if acct.Balance != gov(8) {
		t.Errorf("worker balance = %s, want 8", acct.Balance)
	}
	reg, _ := e.GetRegistry(ctx, "GOV")
	if reg.FeeReserve != gov(92) {
		t.Errorf("reserve = %s, want 92", reg.FeeReserve)
	}
	if reg.Voters != 4 {
		t.Errorf("voters = %d, want 4 after opening the worker account", reg.Voters)
	}
	w, _ := e.GetWorker(ctx, worker)
	if w.HasUnpaidWork() {
		t.Errorf("accumulators not reset: %+v", w)
	}
	if !w.LastPayment.Equal(clk.now()) {
		t.Errorf("last payment = %v, want %v", w.LastPayment, clk.now())
	}

	_, err = e.ClaimPayment(ctx, worker, "GOV")
	wantKind(t, err, domain.KindPolicyViolation)
}

func TestClaimPayment_IncludesCleanupWork(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	setPayment(t, e, 1000, 2, false)
	ctx := context.Background()
	must(t, e.FundReserve(ctx, gov(100)))

	openBallot(t, e, clk, "b1", domain.MethodOneTokenNVote, 1, "yes")
	_, err := e.CastVote(ctx, alice, "b1", sel("yes"))
	must(t, err)
	clk.advance(49 * time.Hour)
	must(t, e.CloseBallot(ctx, mgr, "b1", false))
	_, err = e.Cleanup(ctx, worker, alice, 1)
	must(t, err)

	paid, err := e.ClaimPayment(ctx, worker, "GOV")
	must(t, err)
	if paid != gov(12) { // 100 × 10% + 1 × 2
		t.Errorf("paid = %s, want 12", paid)
	}
}

func TestClaimPayment_DeferredWhenReserveShort(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	setPayment(t, e, 1000, 2, false)
	accrueRebalance(t, e, clk)
	ctx := context.Background()
	must(t, e.FundReserve(ctx, gov(5)))

	_, err := e.ClaimPayment(ctx, worker, "GOV")
	wantKind(t, err, domain.KindPolicyViolation)

	reg, _ := e.GetRegistry(ctx, "GOV")
	if reg.FeeReserve != gov(5) {
		t.Errorf("reserve = %s, want untouched 5", reg.FeeReserve)
	}
	w, _ := e.GetWorker(ctx, worker)
	if w.RebalanceVolume["GOV"] != 60 || w.RebalanceCount["GOV"] != 1 {
		t.Errorf("accumulators changed on deferral: %+v", w)
	}
}

func TestClaimPayment_PartialPaysReserve(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	setPayment(t, e, 1000, 2, true)
	accrueRebalance(t, e, clk)
	ctx := context.Background()
	must(t, e.FundReserve(ctx, gov(5)))

	paid, err := e.ClaimPayment(ctx, worker, "GOV")
	must(t, err)
	if paid != gov(5) {
		t.Errorf("paid = %s, want 5", paid)
	}
	reg, _ := e.GetRegistry(ctx, "GOV")
	if !reg.FeeReserve.IsZero() {
		t.Errorf("reserve = %s, want 0", reg.FeeReserve)
	}
	w, _ := e.GetWorker(ctx, worker)
	if w.HasUnpaidWork() {
		t.Error("partial payment should forfeit the remainder")
	}
}

func TestClaimPayment_SuspendedWorker(t *testing.T) {
	e, clk := newTestEngine(t)
	setupRegistry(t, e)
	registerWorker(t, e)
	accrueRebalance(t, e, clk)
	ctx := context.Background()
	must(t, e.FundReserve(ctx, gov(100)))
	must(t, e.SuspendWorker(ctx, worker))

	_, err := e.ClaimPayment(ctx, worker, "GOV")
	wantKind(t, err, domain.KindPolicyViolation)
}

func TestOwedFor(t *testing.T) {
	tests := []struct {
		name          string
		bps, perCount int64
		volume, count int64
		want          int64
	}{
		{"volume only", 100, 0, 10_000, 0, 100},
		{"count only", 0, 3, 0, 7, 21},
		{"rounds down", 100, 0, 99, 0, 0},
		{"both", 1000, 2, 60, 1, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := owedFor(domain.PaymentPolicy{RatePerVolumeBps: tt.bps, RatePerCount: tt.perCount}, tt.volume, tt.count)
			must(t, err)
			if got != tt.want {
				t.Errorf("owed = %d, want %d", got, tt.want)
			}
		})
	}

	_, err := owedFor(domain.PaymentPolicy{RatePerCount: 1 << 40}, 0, 1<<40)
	wantKind(t, err, domain.KindArithmetic)
}
