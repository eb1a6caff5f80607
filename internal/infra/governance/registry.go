package governance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Registry Actions ───────────────────────────────────────────────────────
// Registries are the source of the balance and staked values that weight
// votes. None of these actions touch outstanding receipts: weights go stale
// on purpose and are repaired by Rebalance.

// NewRegistry creates a registry for maxSupply's symbol with zero supply.
func (e *Engine) NewRegistry(ctx context.Context, manager string, maxSupply domain.Asset, access domain.Access) (*domain.Registry, error) {
	sym := maxSupply.Symbol
	switch {
	case manager == "":
		return nil, errorf(domain.ErrPolicyViolation, "manager is required")
	case !sym.Valid():
		return nil, errorf(domain.ErrPolicyViolation, "invalid symbol %s", sym)
	case maxSupply.Amount <= 0:
		return nil, errorf(domain.ErrPolicyViolation, "max supply must be positive")
	case !access.Valid():
		return nil, errorf(domain.ErrPolicyViolation, "unknown access %q", access)
	}

	zero := domain.NewAsset(0, sym)
	reg := &domain.Registry{
		Supply:           zero,
		MaxSupply:        maxSupply,
		Access:           access,
		Manager:          manager,
		Settings:         make(map[string]bool, len(domain.RegistrySettings)),
		RebalancedVolume: zero,
		FeeReserve:       zero,
	}
	for _, s := range domain.RegistrySettings {
		reg.Settings[s] = false
	}

	err := e.invoke(ctx, "newregistry", map[string]string{"symbol": sym.Code}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		if _, err := tx.Registry(sym.Code); err == nil {
			return nil, errorf(domain.ErrPolicyViolation, "registry %s already exists", sym.Code)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, tx.PutRegistry(reg)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[governance] registry %s created by %s (%s, max %s)", sym.Code, manager, access, maxSupply)
	return reg.Clone(), nil
}

// ToggleRegistry flips a registry setting. Locked registries refuse.
func (e *Engine) ToggleRegistry(ctx context.Context, caller, code, setting string) error {
	if !slices.Contains(domain.RegistrySettings, setting) {
		return errorf(domain.ErrPolicyViolation, "unknown registry setting %q", setting)
	}
	return e.updateRegistry(ctx, "toggleregistry", code, func(reg *domain.Registry) error {
		if err := requireManager(reg, caller); err != nil {
			return err
		}
		if reg.Locked {
			return errorf(domain.ErrInvalidState, "registry %s is locked", code)
		}
		reg.Settings[setting] = !reg.Settings[setting]
		return nil
	})
}

// MutateMax changes the max supply. It never drops below current supply.
func (e *Engine) MutateMax(ctx context.Context, caller string, newMax domain.Asset) error {
	return e.updateRegistry(ctx, "mutatemax", newMax.Symbol.Code, func(reg *domain.Registry) error {
		if err := requireManager(reg, caller); err != nil {
			return err
		}
		if err := requireSetting(reg, domain.SettingMaxMutable); err != nil {
			return err
		}
		if err := checkQty(reg, newMax); err != nil {
			return err
		}
		if newMax.Amount < reg.Supply.Amount {
			return errorf(domain.ErrPolicyViolation, "max supply %s below current supply %s", newMax, reg.Supply)
		}
		reg.MaxSupply = newMax
		return nil
	})
}

// LockRegistry freezes the registry's settings.
func (e *Engine) LockRegistry(ctx context.Context, caller, code string) error {
	return e.updateRegistry(ctx, "lockregistry", code, func(reg *domain.Registry) error {
		if err := requireManager(reg, caller); err != nil {
			return err
		}
		if reg.Locked {
			return errorf(domain.ErrInvalidState, "registry %s is already locked", code)
		}
		reg.Locked = true
		return nil
	})
}

// UnlockRegistry lifts the lock. When an unlocker is set only that account
// may unlock; otherwise the manager may.
func (e *Engine) UnlockRegistry(ctx context.Context, caller, code string) error {
	return e.updateRegistry(ctx, "unlockregistry", code, func(reg *domain.Registry) error {
		want := reg.UnlockAcct
		if want == "" {
			want = reg.Manager
		}
		if caller != want {
			return errorf(domain.ErrPolicyViolation, "%s may not unlock %s", caller, code)
		}
		if !reg.Locked {
			return errorf(domain.ErrInvalidState, "registry %s is not locked", code)
		}
		reg.Locked = false
		return nil
	})
}

// SetUnlocker names the account (and its permission) allowed to unlock.
func (e *Engine) SetUnlocker(ctx context.Context, caller, code, acct, auth string) error {
	return e.updateRegistry(ctx, "setunlocker", code, func(reg *domain.Registry) error {
		if err := requireManager(reg, caller); err != nil {
			return err
		}
		if reg.Locked {
			return errorf(domain.ErrInvalidState, "registry %s is locked", code)
		}
		reg.UnlockAcct, reg.UnlockAuth = acct, auth
		return nil
	})
}

// FundReserve credits the registry's worker-payment reserve.
func (e *Engine) FundReserve(ctx context.Context, qty domain.Asset) error {
	return e.updateRegistry(ctx, "fundreserve", qty.Symbol.Code, func(reg *domain.Registry) error {
		if err := checkQty(reg, qty); err != nil {
			return err
		}
		reserve, err := reg.FeeReserve.Add(qty)
		if err != nil {
			return err
		}
		reg.FeeReserve = reserve
		return nil
	})
}

func (e *Engine) updateRegistry(ctx context.Context, name, code string, fn func(reg *domain.Registry) error) error {
	return e.invoke(ctx, name, map[string]string{"symbol": code}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := fn(reg); err != nil {
			return nil, err
		}
		return nil, tx.PutRegistry(reg)
	})
}

// ─── Token Movements ────────────────────────────────────────────────────────

// Mint issues qty to an existing account. Supply never exceeds max supply.
func (e *Engine) Mint(ctx context.Context, caller, to string, qty domain.Asset) error {
	code := qty.Symbol.Code
	return e.invoke(ctx, "mint", map[string]string{"symbol": code, "to": to}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := requireManager(reg, caller); err != nil {
			return nil, err
		}
		if err := checkQty(reg, qty); err != nil {
			return nil, err
		}
		supply, err := reg.Supply.Add(qty)
		if err != nil {
			return nil, err
		}
		if supply.Amount > reg.MaxSupply.Amount {
			return nil, errorf(domain.ErrArithmetic, "minting %s exceeds max supply %s", qty, reg.MaxSupply)
		}
		acct, err := tx.Account(to, code)
		if err != nil {
			return nil, err
		}
		if acct.Balance, err = acct.Balance.Add(qty); err != nil {
			return nil, err
		}
		reg.Supply = supply
		if err := tx.PutAccount(acct); err != nil {
			return nil, err
		}
		return nil, tx.PutRegistry(reg)
	})
}

// Transfer moves liquid balance between two accounts.
func (e *Engine) Transfer(ctx context.Context, from, to string, qty domain.Asset) error {
	code := qty.Symbol.Code
	return e.invoke(ctx, "transfer", map[string]string{"symbol": code, "from": from, "to": to}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		if from == to {
			return nil, errorf(domain.ErrPolicyViolation, "cannot transfer to self")
		}
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := requireSetting(reg, domain.SettingTransferable); err != nil {
			return nil, err
		}
		if err := checkQty(reg, qty); err != nil {
			return nil, err
		}
		return nil, move(tx, from, to, qty)
	})
}

// Burn destroys qty from the manager's balance.
func (e *Engine) Burn(ctx context.Context, caller string, qty domain.Asset) error {
	code := qty.Symbol.Code
	return e.invoke(ctx, "burn", map[string]string{"symbol": code}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := requireManager(reg, caller); err != nil {
			return nil, err
		}
		if err := requireSetting(reg, domain.SettingBurnable); err != nil {
			return nil, err
		}
		if err := checkQty(reg, qty); err != nil {
			return nil, err
		}
		acct, err := tx.Account(caller, code)
		if err != nil {
			return nil, err
		}
		if err := debit(&acct.Balance, qty); err != nil {
			return nil, err
		}
		if reg.Supply, err = reg.Supply.Sub(qty); err != nil {
			return nil, err
		}
		if err := tx.PutAccount(acct); err != nil {
			return nil, err
		}
		return nil, tx.PutRegistry(reg)
	})
}

// Reclaim returns qty of a voter's liquid balance to the manager.
func (e *Engine) Reclaim(ctx context.Context, caller, voter string, qty domain.Asset) error {
	code := qty.Symbol.Code
	return e.invoke(ctx, "reclaim", map[string]string{"symbol": code, "voter": voter}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := requireManager(reg, caller); err != nil {
			return nil, err
		}
		if err := requireSetting(reg, domain.SettingReclaimable); err != nil {
			return nil, err
		}
		if err := checkQty(reg, qty); err != nil {
			return nil, err
		}
		if voter == reg.Manager {
			return nil, errorf(domain.ErrPolicyViolation, "cannot reclaim from the manager")
		}
		return nil, move(tx, voter, reg.Manager, qty)
	})
}

// Stake moves liquid balance into the staked bucket.
func (e *Engine) Stake(ctx context.Context, voter string, qty domain.Asset) error {
	return e.restake(ctx, "stake", voter, qty, true)
}

// Unstake moves staked balance back to liquid.
func (e *Engine) Unstake(ctx context.Context, voter string, qty domain.Asset) error {
	return e.restake(ctx, "unstake", voter, qty, false)
}

func (e *Engine) restake(ctx context.Context, name, voter string, qty domain.Asset, toStake bool) error {
	code := qty.Symbol.Code
	return e.invoke(ctx, name, map[string]string{"symbol": code, "voter": voter}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := requireSetting(reg, domain.SettingStakeable); err != nil {
			return nil, err
		}
		if err := checkQty(reg, qty); err != nil {
			return nil, err
		}
		acct, err := tx.Account(voter, code)
		if err != nil {
			return nil, err
		}
		src, dst := &acct.Balance, &acct.Staked
		if !toStake {
			src, dst = dst, src
		}
		if err := debit(src, qty); err != nil {
			return nil, err
		}
		if *dst, err = dst.Add(qty); err != nil {
			return nil, err
		}
		return nil, tx.PutAccount(acct)
	})
}

// move transfers liquid balance between two existing accounts.
func move(tx domain.Tx, from, to string, qty domain.Asset) error {
	code := qty.Symbol.Code
	src, err := tx.Account(from, code)
	if err != nil {
		return err
	}
	dst, err := tx.Account(to, code)
	if err != nil {
		return err
	}
	if err := debit(&src.Balance, qty); err != nil {
		return err
	}
	if dst.Balance, err = dst.Balance.Add(qty); err != nil {
		return err
	}
	if err := tx.PutAccount(src); err != nil {
		return err
	}
	return tx.PutAccount(dst)
}

// debit subtracts qty from bal, refusing to go negative.
func debit(bal *domain.Asset, qty domain.Asset) error {
	if bal.Amount < qty.Amount {
		return errorf(domain.ErrPolicyViolation, "insufficient balance: have %s, need %s", *bal, qty)
	}
	next, err := bal.Sub(qty)
	if err != nil {
		return err
	}
	*bal = next
	return nil
}

// ─── Voter Registration ─────────────────────────────────────────────────────

// RegisterVoter opens a zero account for voter in registry code.
//
//	public      the voter or the manager
//	private     the manager only
//	invite      the manager, or any existing member as referrer
//	membership  the manager only
func (e *Engine) RegisterVoter(ctx context.Context, caller, voter, code string) error {
	if voter == "" {
		return errorf(domain.ErrPolicyViolation, "voter is required")
	}
	return e.invoke(ctx, "regvoter", map[string]string{"symbol": code, "voter": voter}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if err := checkAccess(tx, reg, caller, voter); err != nil {
			return nil, err
		}
		if _, err := tx.Account(voter, code); err == nil {
			return nil, errorf(domain.ErrPolicyViolation, "%s is already registered in %s", voter, code)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, openAccount(tx, reg, voter)
	})
}

func checkAccess(tx domain.Tx, reg *domain.Registry, caller, voter string) error {
	if caller == reg.Manager {
		return nil
	}
	switch reg.Access {
	case domain.AccessPublic:
		if caller == voter {
			return nil
		}
	case domain.AccessInvite:
		if _, err := tx.Account(caller, reg.Symbol().Code); err == nil {
			return nil
		}
	}
	return errorf(domain.ErrPolicyViolation, "%s may not register %s in %s registry %s", caller, voter, reg.Access, reg.Symbol().Code)
}

// openAccount creates a zero account and counts the voter. reg is persisted.
func openAccount(tx domain.Tx, reg *domain.Registry, voter string) error {
	zero := domain.NewAsset(0, reg.Symbol())
	if reg.Voters == ^uint32(0) {
		return errorf(domain.ErrArithmetic, "voter count overflow")
	}
	reg.Voters++
	if err := tx.PutAccount(&domain.Account{Voter: voter, Balance: zero, Staked: zero}); err != nil {
		return err
	}
	return tx.PutRegistry(reg)
}

// UnregisterVoter closes an empty account.
func (e *Engine) UnregisterVoter(ctx context.Context, voter, code string) error {
	return e.invoke(ctx, "unregvoter", map[string]string{"symbol": code, "voter": voter}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		acct, err := tx.Account(voter, code)
		if err != nil {
			return nil, err
		}
		if !acct.Balance.IsZero() || !acct.Staked.IsZero() {
			return nil, errorf(domain.ErrPolicyViolation, "account %s/%s still holds %s liquid, %s staked", voter, code, acct.Balance, acct.Staked)
		}
		if err := tx.DeleteAccount(voter, code); err != nil {
			return nil, err
		}
		if reg.Voters == 0 {
			return nil, fmt.Errorf("registry %s voter count underflow: %w", code, domain.ErrArithmetic)
		}
		reg.Voters--
		return nil, tx.PutRegistry(reg)
	})
}
