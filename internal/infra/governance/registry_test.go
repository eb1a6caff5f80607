package governance

import (
	"context"
	"testing"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Registry Lifecycle ─────────────────────────────────────────────────────

func TestNewRegistry(t *testing.T) {
	e, _ := newTestEngine(t)
	reg, err := e.NewRegistry(context.Background(), mgr, gov(500), domain.AccessPrivate)
	must(t, err)

	if reg.Manager != mgr || reg.Access != domain.AccessPrivate {
		t.Errorf("registry = %+v", reg)
	}
	if !reg.Supply.IsZero() || !reg.FeeReserve.IsZero() {
		t.Errorf("supply = %s, reserve = %s, want zero", reg.Supply, reg.FeeReserve)
	}
	for _, s := range domain.RegistrySettings {
		if reg.Setting(s) {
			t.Errorf("setting %s = true, want false", s)
		}
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		max    domain.Asset
		access domain.Access
	}{
		{"lowercase symbol", domain.NewAsset(10, domain.NewSymbol("gov", 0)), domain.AccessPublic},
		{"zero max", gov(0), domain.AccessPublic},
		{"unknown access", gov(10), domain.Access("secret")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			_, err := e.NewRegistry(context.Background(), mgr, tt.max, tt.access)
			wantKind(t, err, domain.KindPolicyViolation)
		})
	}
}

func TestNewRegistry_Duplicate(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.NewRegistry(ctx, mgr, gov(10), domain.AccessPublic)
	must(t, err)
	_, err = e.NewRegistry(ctx, bob, gov(99), domain.AccessPublic)
	wantKind(t, err, domain.KindPolicyViolation)
}

func TestToggleRegistry(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.NewRegistry(ctx, mgr, gov(10), domain.AccessPublic)
	must(t, err)

	wantKind(t, e.ToggleRegistry(ctx, mgr, "GOV", "flying"), domain.KindPolicyViolation)
	wantKind(t, e.ToggleRegistry(ctx, alice, "GOV", domain.SettingBurnable), domain.KindPolicyViolation)
	wantKind(t, e.ToggleRegistry(ctx, mgr, "NOPE", domain.SettingBurnable), domain.KindNotFound)

	must(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingBurnable))
	reg, err := e.GetRegistry(ctx, "GOV")
	must(t, err)
	if !reg.Setting(domain.SettingBurnable) {
		t.Error("burnable should be on")
	}
}

func TestLockRegistry(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.NewRegistry(ctx, mgr, gov(10), domain.AccessPublic)
	must(t, err)

	must(t, e.SetUnlocker(ctx, mgr, "GOV", "carol", "active"))
	must(t, e.LockRegistry(ctx, mgr, "GOV"))

	wantKind(t, e.LockRegistry(ctx, mgr, "GOV"), domain.KindInvalidState)
	wantKind(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingBurnable), domain.KindInvalidState)
	wantKind(t, e.SetUnlocker(ctx, mgr, "GOV", mgr, "active"), domain.KindInvalidState)
	wantKind(t, e.UnlockRegistry(ctx, mgr, "GOV"), domain.KindPolicyViolation)

	must(t, e.UnlockRegistry(ctx, "carol", "GOV"))
	wantKind(t, e.UnlockRegistry(ctx, "carol", "GOV"), domain.KindInvalidState)
	must(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingBurnable))
}

func TestMutateMax(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	wantKind(t, e.MutateMax(ctx, mgr, gov(2_000_000)), domain.KindPolicyViolation) // not maxmutable
	must(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingMaxMutable))

	wantKind(t, e.MutateMax(ctx, mgr, gov(1149)), domain.KindPolicyViolation) // below supply
	must(t, e.MutateMax(ctx, mgr, gov(1150)))

	reg, err := e.GetRegistry(ctx, "GOV")
	must(t, err)
	if reg.MaxSupply != gov(1150) {
		t.Errorf("max supply = %s, want %s", reg.MaxSupply, gov(1150))
	}
}

// ─── Token Movements ────────────────────────────────────────────────────────

func TestMint(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	reg, err := e.GetRegistry(ctx, "GOV")
	must(t, err)
	if reg.Supply != gov(1150) {
		t.Errorf("supply = %s, want %s", reg.Supply, gov(1150))
	}

	wantKind(t, e.Mint(ctx, alice, alice, gov(1)), domain.KindPolicyViolation)
	wantKind(t, e.Mint(ctx, mgr, "stranger", gov(1)), domain.KindNotFound)
	wantKind(t, e.Mint(ctx, mgr, alice, gov(0)), domain.KindPolicyViolation)
	wantKind(t, e.Mint(ctx, mgr, alice, gov(-5)), domain.KindArithmetic)
	wantKind(t, e.Mint(ctx, mgr, alice, domain.NewAsset(1, domain.NewSymbol("GOV", 2))), domain.KindPolicyViolation)
}

func TestTransfer(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	must(t, e.Transfer(ctx, alice, bob, gov(30)))
	wantKind(t, e.Transfer(ctx, alice, bob, gov(71)), domain.KindPolicyViolation)
	wantKind(t, e.Transfer(ctx, alice, alice, gov(1)), domain.KindPolicyViolation)

	a, _ := e.GetAccount(ctx, alice, "GOV")
	b, _ := e.GetAccount(ctx, bob, "GOV")
	if a.Balance != gov(70) || b.Balance != gov(80) {
		t.Errorf("balances = %s / %s, want 70 / 80", a.Balance, b.Balance)
	}

	must(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingTransferable))
	wantKind(t, e.Transfer(ctx, alice, bob, gov(1)), domain.KindPolicyViolation)
}

func TestBurnAndReclaim(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	must(t, e.Reclaim(ctx, mgr, alice, gov(30)))
	must(t, e.Burn(ctx, mgr, gov(200)))
	wantKind(t, e.Reclaim(ctx, bob, alice, gov(1)), domain.KindPolicyViolation)
	wantKind(t, e.Burn(ctx, mgr, gov(5000)), domain.KindPolicyViolation)

	a, _ := e.GetAccount(ctx, alice, "GOV")
	m, _ := e.GetAccount(ctx, mgr, "GOV")
	reg, _ := e.GetRegistry(ctx, "GOV")
	if a.Balance != gov(70) {
		t.Errorf("alice = %s, want 70", a.Balance)
	}
	if m.Balance != gov(830) {
		t.Errorf("manager = %s, want 830", m.Balance)
	}
	if reg.Supply != gov(950) {
		t.Errorf("supply = %s, want 950", reg.Supply)
	}
}

func TestStakeUnstake(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	must(t, e.Stake(ctx, alice, gov(40)))
	wantKind(t, e.Unstake(ctx, alice, gov(41)), domain.KindPolicyViolation)
	must(t, e.Unstake(ctx, alice, gov(15)))

	a, _ := e.GetAccount(ctx, alice, "GOV")
	if a.Balance != gov(75) || a.Staked != gov(25) {
		t.Errorf("balance/staked = %s / %s, want 75 / 25", a.Balance, a.Staked)
	}

	must(t, e.ToggleRegistry(ctx, mgr, "GOV", domain.SettingStakeable))
	wantKind(t, e.Stake(ctx, alice, gov(1)), domain.KindPolicyViolation)
}

func TestFundReserve(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	must(t, e.FundReserve(ctx, gov(40)))
	must(t, e.FundReserve(ctx, gov(2)))
	wantKind(t, e.FundReserve(ctx, domain.NewAsset(1, domain.NewSymbol("GOV", 4))), domain.KindPolicyViolation)

	reg, _ := e.GetRegistry(ctx, "GOV")
	if reg.FeeReserve != gov(42) {
		t.Errorf("reserve = %s, want 42", reg.FeeReserve)
	}
}

// ─── Voter Registration ─────────────────────────────────────────────────────

func TestRegisterVoter_Access(t *testing.T) {
	tests := []struct {
		access domain.Access
		caller string
		ok     bool
	}{
		{domain.AccessPublic, "carol", true},
		{domain.AccessPublic, mgr, true},
		{domain.AccessPublic, bob, false},
		{domain.AccessPrivate, "carol", false},
		{domain.AccessPrivate, mgr, true},
		{domain.AccessInvite, bob, true}, // bob is a member
		{domain.AccessInvite, "dave", false},
		{domain.AccessMembership, "carol", false},
		{domain.AccessMembership, mgr, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.access)+"/"+tt.caller, func(t *testing.T) {
			e, _ := newTestEngine(t)
			ctx := context.Background()
			_, err := e.NewRegistry(ctx, mgr, gov(10), tt.access)
			must(t, err)
			must(t, e.RegisterVoter(ctx, mgr, bob, "GOV"))

			err = e.RegisterVoter(ctx, tt.caller, "carol", "GOV")
			if tt.ok {
				must(t, err)
				return
			}
			wantKind(t, err, domain.KindPolicyViolation)
		})
	}
}

func TestRegisterVoter_Duplicate(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	wantKind(t, e.RegisterVoter(context.Background(), alice, alice, "GOV"), domain.KindPolicyViolation)
}

func TestUnregisterVoter(t *testing.T) {
	e, _ := newTestEngine(t)
	setupRegistry(t, e)
	ctx := context.Background()

	wantKind(t, e.UnregisterVoter(ctx, alice, "GOV"), domain.KindPolicyViolation)

	must(t, e.RegisterVoter(ctx, "carol", "carol", "GOV"))
	must(t, e.UnregisterVoter(ctx, "carol", "GOV"))

	reg, _ := e.GetRegistry(ctx, "GOV")
	if reg.Voters != 3 {
		t.Errorf("voters = %d, want 3", reg.Voters)
	}
	_, err := e.GetAccount(ctx, "carol", "GOV")
	wantKind(t, err, domain.KindNotFound)
}
