// Package domain contains the pure ledger types shared by every layer:
// registries, accounts, ballots, vote receipts, workers and the config record.
// It imports nothing outside the standard library.
package domain

import (
	"maps"
	"time"
)

// ─── Registry Types ─────────────────────────────────────────────────────────

// Access is a registry's voter-registration policy.
type Access string

const (
	AccessPublic     Access = "public"
	AccessPrivate    Access = "private"
	AccessInvite     Access = "invite"
	AccessMembership Access = "membership"
)

// Valid reports whether a is a known access policy.
func (a Access) Valid() bool {
	switch a {
	case AccessPublic, AccessPrivate, AccessInvite, AccessMembership:
		return true
	}
	return false
}

// Registry setting names.
const (
	SettingTransferable = "transferable"
	SettingBurnable     = "burnable"
	SettingReclaimable  = "reclaimable"
	SettingStakeable    = "stakeable"
	SettingMaxMutable   = "maxmutable"
)

// RegistrySettings lists every toggleable registry setting.
var RegistrySettings = []string{
	SettingTransferable, SettingBurnable, SettingReclaimable, SettingStakeable, SettingMaxMutable,
}

// Registry is a token ledger keyed by symbol code. Supply never exceeds
// MaxSupply; settings only change while unlocked.
type Registry struct {
	Supply      Asset           `json:"supply"`
	MaxSupply   Asset           `json:"max_supply"`
	Voters      uint32          `json:"voters"`
	Access      Access          `json:"access"`
	Locked      bool            `json:"locked"`
	UnlockAcct  string          `json:"unlock_acct"`
	UnlockAuth  string          `json:"unlock_auth"`
	Manager     string          `json:"manager"`
	Settings    map[string]bool `json:"settings"`
	OpenBallots uint16          `json:"open_ballots"`

	RebalancedVolume Asset  `json:"rebalanced_volume"`
	RebalancedCount  uint32 `json:"rebalanced_count"`

	// FeeReserve funds worker payments for this registry.
	FeeReserve Asset `json:"fee_reserve"`
}

// Symbol returns the registry's symbol.
func (r *Registry) Symbol() Symbol { return r.Supply.Symbol }

// Setting reports a named setting (false if never set).
func (r *Registry) Setting(name string) bool { return r.Settings[name] }

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	c := *r
	c.Settings = maps.Clone(r.Settings)
	return &c
}

// Account is one voter's holding in one registry.
type Account struct {
	Voter   string `json:"voter"`
	Balance Asset  `json:"balance"`
	Staked  Asset  `json:"staked"`
}

// Clone returns a copy.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// ─── Ballot Types ───────────────────────────────────────────────────────────

// BallotStatus is a ballot's lifecycle state.
type BallotStatus string

const (
	BallotSetup     BallotStatus = "setup"
	BallotVoting    BallotStatus = "voting"
	BallotClosed    BallotStatus = "closed"
	BallotCancelled BallotStatus = "cancelled"
	BallotArchived  BallotStatus = "archived"
)

// Valid reports whether s is a known status.
func (s BallotStatus) Valid() bool {
	switch s {
	case BallotSetup, BallotVoting, BallotClosed, BallotCancelled, BallotArchived:
		return true
	}
	return false
}

// Category classifies what a ballot decides.
type Category string

const (
	CatProposal    Category = "proposal"
	CatReferendum  Category = "referendum"
	CatElection    Category = "election"
	CatPoll        Category = "poll"
	CatLeaderboard Category = "leaderboard"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CatProposal, CatReferendum, CatElection, CatPoll, CatLeaderboard:
		return true
	}
	return false
}

// Ballot setting names.
const (
	SettingLightBallot = "lightballot"
	SettingRevotable   = "revotable"
	SettingUseStake    = "usestake"
)

// BallotSettings lists every toggleable ballot setting.
var BallotSettings = []string{SettingLightBallot, SettingRevotable, SettingUseStake}

// Ballot is a named vote. Option keys are fixed once voting starts; each
// value is the accumulated weighted tally in base units of Symbol.
type Ballot struct {
	Name        string           `json:"ballot_name"`
	Category    Category         `json:"category"`
	Publisher   string           `json:"publisher"`
	Status      BallotStatus     `json:"status"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Info        string           `json:"ballot_info"`
	Method      VotingMethod     `json:"voting_method"`
	MaxOptions  int              `json:"max_options"`
	Options     map[string]int64 `json:"options"`
	Symbol      Symbol           `json:"registry_symbol"`
	TotalVotes  int64            `json:"total_votes"`
	TotalVoters uint32           `json:"total_voters"`
	Settings    map[string]bool  `json:"settings"`

	CleanedVolume int64  `json:"cleaned_volume"`
	CleanedCount  uint32 `json:"cleaned_count"`

	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`

	// Results is the immutable snapshot posted at close, if requested.
	Results *Results `json:"results,omitempty"`
}

// Setting reports a named setting (false if never set).
func (b *Ballot) Setting(name string) bool { return b.Settings[name] }

// HasOption reports whether name is one of the ballot's options.
func (b *Ballot) HasOption(name string) bool {
	_, ok := b.Options[name]
	return ok
}

// Clone returns a deep copy.
func (b *Ballot) Clone() *Ballot {
	c := *b
	c.Options = maps.Clone(b.Options)
	c.Settings = maps.Clone(b.Settings)
	if b.Results != nil {
		r := *b.Results
		r.Options = maps.Clone(b.Results.Options)
		c.Results = &r
	}
	return &c
}

// Results is the audit snapshot of a closed ballot. It equals the live
// tallies at the moment of closing.
type Results struct {
	Ballot      string           `json:"ballot_name"`
	Options     map[string]int64 `json:"options"`
	Method      VotingMethod     `json:"voting_method"`
	TotalVotes  int64            `json:"total_votes"`
	TotalVoters uint32           `json:"total_voters"`
	ClosedAt    time.Time        `json:"closed_at"`
}

// Archival records how long an archived ballot is retained.
type Archival struct {
	Ballot        string       `json:"ballot_name"`
	ArchivedUntil time.Time    `json:"archived_until"`
	PriorStatus   BallotStatus `json:"prior_status"`
}

// ─── Vote Receipts ──────────────────────────────────────────────────────────

// Selection is one chosen option. Grade is read only by the graded method.
type Selection struct {
	Option string `json:"option"`
	Grade  uint8  `json:"grade,omitempty"`
}

// VoteReceipt is one voter's recorded vote on one ballot. Weights were
// consistent with the voter's account at the last (re)computation; they go
// stale when the account changes and are repaired by rebalance.
type VoteReceipt struct {
	Voter      string           `json:"voter"`
	Ballot     string           `json:"ballot_name"`
	Symbol     Symbol           `json:"registry_symbol"`
	Selections []Selection      `json:"selections"`
	Weights    map[string]int64 `json:"options_voted"`
	Raw        int64            `json:"raw_weight"`
	Expiration time.Time        `json:"expiration"`
}

// Total sums the recorded weights.
func (v *VoteReceipt) Total() int64 {
	var t int64
	for _, w := range v.Weights {
		t += w
	}
	return t
}

// Clone returns a deep copy.
func (v *VoteReceipt) Clone() *VoteReceipt {
	c := *v
	c.Selections = append([]Selection(nil), v.Selections...)
	c.Weights = maps.Clone(v.Weights)
	return &c
}

// ─── Workers ────────────────────────────────────────────────────────────────

// Standing is a worker's eligibility to perform paid repair work.
type Standing string

const (
	StandingActive    Standing = "active"
	StandingSuspended Standing = "suspended"
)

// Worker is a permissionless maintenance actor. Rebalance work accrues per
// registry symbol code; cleanup work accrues per ballot name.
type Worker struct {
	Name        string    `json:"worker_name"`
	Standing    Standing  `json:"standing"`
	LastPayment time.Time `json:"last_payment"`

	RebalanceVolume map[string]int64  `json:"rebalance_volume"`
	RebalanceCount  map[string]uint32 `json:"rebalance_count"`
	CleanVolume     map[string]int64  `json:"clean_volume"`
	CleanCount      map[string]uint32 `json:"clean_count"`
}

// NewWorker returns an active worker with empty accumulators.
func NewWorker(name string, now time.Time) *Worker {
	return &Worker{
		Name:            name,
		Standing:        StandingActive,
		LastPayment:     now,
		RebalanceVolume: make(map[string]int64),
		RebalanceCount:  make(map[string]uint32),
		CleanVolume:     make(map[string]int64),
		CleanCount:      make(map[string]uint32),
	}
}

// HasUnpaidWork reports whether any accumulator is non-zero.
func (w *Worker) HasUnpaidWork() bool {
	for _, c := range w.RebalanceCount {
		if c > 0 {
			return true
		}
	}
	for _, c := range w.CleanCount {
		if c > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (w *Worker) Clone() *Worker {
	c := *w
	c.RebalanceVolume = maps.Clone(w.RebalanceVolume)
	c.RebalanceCount = maps.Clone(w.RebalanceCount)
	c.CleanVolume = maps.Clone(w.CleanVolume)
	c.CleanCount = maps.Clone(w.CleanCount)
	return &c
}

// ─── Config Singleton ───────────────────────────────────────────────────────

// PaymentPolicy prices worker repair work.
//
//	owed = volume × RatePerVolumeBps / 10000 + count × RatePerCount
//
// AllowPartial decides what happens when the fee reserve cannot cover owed:
// false defers the claim untouched, true pays the whole reserve and forfeits
// the remainder.
type PaymentPolicy struct {
	RatePerVolumeBps int64 `json:"rate_per_volume_bps" toml:"rate_per_volume_bps"`
	RatePerCount     int64 `json:"rate_per_count" toml:"rate_per_count"`
	AllowPartial     bool  `json:"allow_partial" toml:"allow_partial"`
}

// LedgerConfig is the singleton configuration record.
type LedgerConfig struct {
	Version         string        `json:"trail_version"`
	BallotFee       Asset         `json:"ballot_listing_fee"`
	RegistryFee     Asset         `json:"registry_creation_fee"`
	ArchivalBaseFee Asset         `json:"archival_base_fee"`
	MinBallotLength time.Duration `json:"min_ballot_length"`
	BallotCooldown  time.Duration `json:"ballot_cooldown"`
	MaxVoteReceipts int           `json:"max_vote_receipts"`
	Payment         PaymentPolicy `json:"payment"`
}

// DefaultLedgerConfig returns the config used when none has been stored.
func DefaultLedgerConfig() LedgerConfig {
	tlos := NewSymbol("TLOS", 4)
	return LedgerConfig{
		Version:         "v2.0.0",
		BallotFee:       NewAsset(300_0000, tlos),
		RegistryFee:     NewAsset(1000_0000, tlos),
		ArchivalBaseFee: NewAsset(5_0000, tlos),
		MinBallotLength: 24 * time.Hour,
		BallotCooldown:  5 * 24 * time.Hour,
		MaxVoteReceipts: 51,
		Payment: PaymentPolicy{
			RatePerVolumeBps: 100,
			RatePerCount:     1,
			AllowPartial:     false,
		},
	}
}
