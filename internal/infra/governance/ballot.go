package governance

import (
	"context"
	"errors"
	"log"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Ballot State Machine
// ═══════════════════════════════════════════════════════════════════════════
//
//	setup ──ready──▶ voting ──close──▶ closed ──archive──▶ archived
//	                   │                  ▲                    │
//	                   └──cancel──▶ cancelled ◀──unarchive─────┘
//
// setup, closed and cancelled ballots may be deleted. Any other transition
// fails with ErrInvalidState.

// maxBallotName bounds ballot name length.
const maxBallotName = 64

// NewBallot creates a ballot in setup. MaxOptions starts at 1 and the
// ballot is revotable by default.
func (e *Engine) NewBallot(ctx context.Context, name string, category domain.Category, publisher, code string, method domain.VotingMethod, options []string) (*domain.Ballot, error) {
	switch {
	case name == "" || len(name) > maxBallotName || strings.ContainsAny(name, " \t\n/"):
		return nil, errorf(domain.ErrPolicyViolation, "invalid ballot name %q", name)
	case publisher == "":
		return nil, errorf(domain.ErrPolicyViolation, "publisher is required")
	case !category.Valid():
		return nil, errorf(domain.ErrPolicyViolation, "unknown category %q", category)
	case !method.Valid():
		return nil, errorf(domain.ErrPolicyViolation, "unknown voting method %q", method)
	}
	opts := make(map[string]int64, len(options))
	for _, o := range options {
		if err := checkOptionName(o); err != nil {
			return nil, err
		}
		if _, dup := opts[o]; dup {
			return nil, errorf(domain.ErrPolicyViolation, "duplicate option %q", o)
		}
		opts[o] = 0
	}

	var out *domain.Ballot
	err := e.invoke(ctx, "newballot", map[string]string{"ballot": name}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		reg, err := tx.Registry(code)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Ballot(name); err == nil {
			return nil, errorf(domain.ErrPolicyViolation, "ballot %s already exists", name)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		out = &domain.Ballot{
			Name:       name,
			Category:   category,
			Publisher:  publisher,
			Status:     domain.BallotSetup,
			Method:     method,
			MaxOptions: 1,
			Options:    opts,
			Symbol:     reg.Symbol(),
			Settings: map[string]bool{
				domain.SettingLightBallot: false,
				domain.SettingRevotable:   true,
				domain.SettingUseStake:    false,
			},
		}
		return nil, tx.PutBallot(out)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func checkOptionName(o string) error {
	if strings.TrimSpace(o) == "" {
		return errorf(domain.ErrPolicyViolation, "option name is blank")
	}
	return nil
}

// EditDetails replaces the descriptive text of a ballot in setup.
func (e *Engine) EditDetails(ctx context.Context, caller, name, title, description, info string) error {
	return e.editSetup(ctx, "editdetails", caller, name, func(b *domain.Ballot) error {
		b.Title, b.Description, b.Info = title, description, info
		return nil
	})
}

// ToggleBallot flips a ballot setting.
func (e *Engine) ToggleBallot(ctx context.Context, caller, name, setting string) error {
	if !slices.Contains(domain.BallotSettings, setting) {
		return errorf(domain.ErrPolicyViolation, "unknown ballot setting %q", setting)
	}
	return e.editSetup(ctx, "toggleballot", caller, name, func(b *domain.Ballot) error {
		b.Settings[setting] = !b.Settings[setting]
		return nil
	})
}

// EditMaxOptions sets how many options one vote may select.
func (e *Engine) EditMaxOptions(ctx context.Context, caller, name string, n int) error {
	return e.editSetup(ctx, "editmaxopts", caller, name, func(b *domain.Ballot) error {
		if n < 1 || n > len(b.Options) {
			return errorf(domain.ErrPolicyViolation, "max options %d outside 1..%d", n, len(b.Options))
		}
		b.MaxOptions = n
		return nil
	})
}

// AddOption adds a zero-tally option.
func (e *Engine) AddOption(ctx context.Context, caller, name, option string) error {
	if err := checkOptionName(option); err != nil {
		return err
	}
	return e.editSetup(ctx, "addoption", caller, name, func(b *domain.Ballot) error {
		if b.HasOption(option) {
			return errorf(domain.ErrPolicyViolation, "option %q already exists", option)
		}
		b.Options[option] = 0
		return nil
	})
}

// RemoveOption drops an option. MaxOptions shrinks with the option set.
func (e *Engine) RemoveOption(ctx context.Context, caller, name, option string) error {
	return e.editSetup(ctx, "rmvoption", caller, name, func(b *domain.Ballot) error {
		if !b.HasOption(option) {
			return errorf(domain.ErrNotFound, "option %q", option)
		}
		delete(b.Options, option)
		if b.MaxOptions > len(b.Options) && len(b.Options) > 0 {
			b.MaxOptions = len(b.Options)
		}
		return nil
	})
}

// editSetup applies fn to a setup-status ballot owned by caller.
func (e *Engine) editSetup(ctx context.Context, action, caller, name string, fn func(b *domain.Ballot) error) error {
	return e.invoke(ctx, action, map[string]string{"ballot": name}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		b, err := loadOwned(tx, caller, name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotSetup {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not setup", name, b.Status)
		}
		if err := fn(b); err != nil {
			return nil, err
		}
		return nil, tx.PutBallot(b)
	})
}

func loadOwned(tx domain.Tx, caller, name string) (*domain.Ballot, error) {
	b, err := tx.Ballot(name)
	if err != nil {
		return nil, err
	}
	if caller != b.Publisher {
		return nil, errorf(domain.ErrPolicyViolation, "%s is not the publisher of %s", caller, name)
	}
	return b, nil
}

// ─── Transitions ────────────────────────────────────────────────────────────

// ReadyBallot opens voting until end.
func (e *Engine) ReadyBallot(ctx context.Context, caller, name string, end time.Time) error {
	return e.invoke(ctx, "readyballot", map[string]string{"ballot": name}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := loadOwned(tx, caller, name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotSetup {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not setup", name, b.Status)
		}
		if len(b.Options) == 0 {
			return nil, errorf(domain.ErrPolicyViolation, "ballot %s has no options", name)
		}
		cfg, err := tx.Config()
		if err != nil {
			return nil, err
		}
		if !end.After(now.Add(cfg.MinBallotLength)) {
			return nil, errorf(domain.ErrPolicyViolation, "end %s is within the minimum ballot length %s", end.Format(time.RFC3339), cfg.MinBallotLength)
		}
		reg, err := tx.Registry(b.Symbol.Code)
		if err != nil {
			return nil, err
		}
		if reg.OpenBallots == math.MaxUint16 {
			return nil, errorf(domain.ErrArithmetic, "registry %s open ballot count overflow", reg.Symbol().Code)
		}
		reg.OpenBallots++
		b.Status = domain.BallotVoting
		b.BeginTime, b.EndTime = now, end
		if err := tx.PutRegistry(reg); err != nil {
			return nil, err
		}
		if err := tx.PutBallot(b); err != nil {
			return nil, err
		}
		log.Printf("[governance] ballot %s voting until %s", name, end.Format(time.RFC3339))
		return []domain.Event{{Type: domain.EventBallotReady, Ballot: name, Symbol: b.Symbol.Code}}, nil
	})
}

// CancelBallot stops a ballot before its end time.
func (e *Engine) CancelBallot(ctx context.Context, caller, name string) error {
	return e.invoke(ctx, "cancelballot", map[string]string{"ballot": name}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := loadOwned(tx, caller, name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotVoting {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not voting", name, b.Status)
		}
		if !now.Before(b.EndTime) {
			return nil, errorf(domain.ErrInvalidState, "ballot %s has ended; close it instead", name)
		}
		if err := leaveVoting(tx, b, domain.BallotCancelled); err != nil {
			return nil, err
		}
		return []domain.Event{{Type: domain.EventBallotCancelled, Ballot: name, Symbol: b.Symbol.Code}}, nil
	})
}

// CloseBallot ends voting once the end time has passed. Any caller may close
// an ended ballot. With postResults a snapshot equal to the live tallies is
// stored on the ballot.
func (e *Engine) CloseBallot(ctx context.Context, caller, name string, postResults bool) error {
	return e.invoke(ctx, "closeballot", map[string]string{"ballot": name, "caller": caller}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := tx.Ballot(name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotVoting {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not voting", name, b.Status)
		}
		if now.Before(b.EndTime) {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is still open until %s", name, b.EndTime.Format(time.RFC3339))
		}
		if postResults {
			b.Results = &domain.Results{
				Ballot:      b.Name,
				Options:     maps.Clone(b.Options),
				Method:      b.Method,
				TotalVotes:  b.TotalVotes,
				TotalVoters: b.TotalVoters,
				ClosedAt:    now,
			}
		}
		if err := leaveVoting(tx, b, domain.BallotClosed); err != nil {
			return nil, err
		}
		log.Printf("[governance] ballot %s closed: %d votes from %d voters", name, b.TotalVotes, b.TotalVoters)
		return []domain.Event{{Type: domain.EventBallotClosed, Ballot: name, Symbol: b.Symbol.Code, Amount: b.TotalVotes}}, nil
	})
}

// leaveVoting moves b out of voting and releases its open-ballot slot.
func leaveVoting(tx domain.Tx, b *domain.Ballot, to domain.BallotStatus) error {
	reg, err := tx.Registry(b.Symbol.Code)
	if err != nil {
		return err
	}
	if reg.OpenBallots == 0 {
		return errorf(domain.ErrArithmetic, "registry %s open ballot count underflow", reg.Symbol().Code)
	}
	reg.OpenBallots--
	b.Status = to
	if err := tx.PutRegistry(reg); err != nil {
		return err
	}
	return tx.PutBallot(b)
}

// ArchiveBallot retains a closed or cancelled ballot until the given time.
// It returns the archival fee: ArchivalBaseFee for every started day.
func (e *Engine) ArchiveBallot(ctx context.Context, caller, name string, until time.Time) (domain.Asset, error) {
	var fee domain.Asset
	err := e.invoke(ctx, "archive", map[string]string{"ballot": name}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := loadOwned(tx, caller, name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotClosed && b.Status != domain.BallotCancelled {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s; only closed or cancelled ballots archive", name, b.Status)
		}
		if !until.After(now) {
			return nil, errorf(domain.ErrExpired, "archive window ending %s has already lapsed", until.Format(time.RFC3339))
		}
		cfg, err := tx.Config()
		if err != nil {
			return nil, err
		}
		if fee, err = archivalFee(cfg.ArchivalBaseFee, until.Sub(now)); err != nil {
			return nil, err
		}
		arch := &domain.Archival{Ballot: name, ArchivedUntil: until, PriorStatus: b.Status}
		b.Status = domain.BallotArchived
		if err := tx.PutArchival(arch); err != nil {
			return nil, err
		}
		return nil, tx.PutBallot(b)
	})
	return fee, err
}

func archivalFee(base domain.Asset, window time.Duration) (domain.Asset, error) {
	days := int64(window / (24 * time.Hour))
	if window%(24*time.Hour) != 0 {
		days++
	}
	if base.Amount != 0 && days > math.MaxInt64/base.Amount {
		return domain.Asset{}, errorf(domain.ErrArithmetic, "archival fee overflow")
	}
	return domain.NewAsset(base.Amount*days, base.Symbol), nil
}

// UnarchiveBallot restores an archived ballot to its prior status once the
// archive window has passed.
func (e *Engine) UnarchiveBallot(ctx context.Context, name string) error {
	return e.invoke(ctx, "unarchive", map[string]string{"ballot": name}, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		b, err := tx.Ballot(name)
		if err != nil {
			return nil, err
		}
		if b.Status != domain.BallotArchived {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is %s, not archived", name, b.Status)
		}
		arch, err := tx.Archival(name)
		if err != nil {
			return nil, err
		}
		if now.Before(arch.ArchivedUntil) {
			return nil, errorf(domain.ErrInvalidState, "ballot %s is archived until %s", name, arch.ArchivedUntil.Format(time.RFC3339))
		}
		b.Status = arch.PriorStatus
		if err := tx.DeleteArchival(name); err != nil {
			return nil, err
		}
		return nil, tx.PutBallot(b)
	})
}

// DeleteBallot removes a ballot that is neither voting nor archived, together
// with every receipt on it, so the name can be reused with a clean slate.
func (e *Engine) DeleteBallot(ctx context.Context, caller, name string) error {
	return e.invoke(ctx, "deleteballot", map[string]string{"ballot": name}, func(tx domain.Tx, _ time.Time) ([]domain.Event, error) {
		b, err := loadOwned(tx, caller, name)
		if err != nil {
			return nil, err
		}
		if b.Status == domain.BallotVoting || b.Status == domain.BallotArchived {
			return nil, errorf(domain.ErrInvalidState, "cannot delete %s ballot %s", b.Status, name)
		}
		dropped, err := tx.DeleteBallotReceipts(name)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteBallot(name); err != nil {
			return nil, err
		}
		return []domain.Event{{Type: domain.EventBallotDeleted, Ballot: name, Symbol: b.Symbol.Code, Count: dropped}}, nil
	})
}
