package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// ─── Symbol Tests ───────────────────────────────────────────────────────────

func TestSymbol_Valid(t *testing.T) {
	tests := []struct {
		sym  Symbol
		want bool
	}{
		{NewSymbol("GOV", 4), true},
		{NewSymbol("ABCDEFG", 0), true},
		{NewSymbol("ABCDEFGH", 0), false},
		{NewSymbol("", 4), false},
		{NewSymbol("gov", 4), false},
		{NewSymbol("G0V", 4), false},
		{NewSymbol("GOV", MaxPrecision+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.sym.String(), func(t *testing.T) {
			if got := tt.sym.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSymbol(t *testing.T) {
	sym, err := ParseSymbol("4,GOV")
	if err != nil {
		t.Fatalf("ParseSymbol() error: %v", err)
	}
	if sym != NewSymbol("GOV", 4) {
		t.Errorf("ParseSymbol = %v, want 4,GOV", sym)
	}
	if sym.Unit() != 10_000 {
		t.Errorf("Unit() = %d, want 10000", sym.Unit())
	}

	for _, bad := range []string{"GOV", "x,GOV", "4,gov", "99,GOV"} {
		if _, err := ParseSymbol(bad); !errors.Is(err, ErrPolicyViolation) {
			t.Errorf("ParseSymbol(%q) error = %v, want policy violation", bad, err)
		}
	}
}

// ─── Asset Tests ────────────────────────────────────────────────────────────

func TestAsset_String(t *testing.T) {
	tests := []struct {
		asset Asset
		want  string
	}{
		{NewAsset(1_000_000, NewSymbol("GOV", 4)), "100.0000 GOV"},
		{NewAsset(5, NewSymbol("GOV", 4)), "0.0005 GOV"},
		{NewAsset(42, NewSymbol("VOTE", 0)), "42 VOTE"},
		{NewAsset(-15, NewSymbol("GOV", 1)), "-1.5 GOV"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.asset.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := ParseAsset(tt.want)
			if err != nil {
				t.Fatalf("ParseAsset() error: %v", err)
			}
			if parsed != tt.asset {
				t.Errorf("ParseAsset(%q) = %+v, want %+v", tt.want, parsed, tt.asset)
			}
		})
	}
}

func TestParseAsset_Rejects(t *testing.T) {
	tests := []struct {
		in   string
		kind ErrorKind
	}{
		{"100", KindPolicyViolation},
		{"1.0 gov", KindPolicyViolation},
		{"abc GOV", KindPolicyViolation},
		{"99999999999999999999.0000 GOV", KindPolicyViolation},
		{"922337203685477.5808 GOV", KindArithmetic},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseAsset(tt.in)
			if got := Kind(err); got != tt.kind {
				t.Errorf("Kind = %q (%v), want %q", got, err, tt.kind)
			}
		})
	}
}

func TestAsset_JSON(t *testing.T) {
	in := struct {
		Fee Asset `json:"fee"`
	}{Fee: NewAsset(3_000_000, NewSymbol("TLOS", 4))}

	body, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"fee":"300.0000 TLOS"}` {
		t.Errorf("json = %s", body)
	}
}

func TestAsset_AddSub(t *testing.T) {
	gov := NewSymbol("GOV", 4)
	a, b := NewAsset(100, gov), NewAsset(40, gov)

	sum, err := a.Add(b)
	if err != nil || sum.Amount != 140 {
		t.Errorf("Add = %v, %v; want 140", sum, err)
	}
	diff, err := a.Sub(b)
	if err != nil || diff.Amount != 60 {
		t.Errorf("Sub = %v, %v; want 60", diff, err)
	}

	if _, err := a.Add(NewAsset(1, NewSymbol("GOV", 2))); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("mismatched Add error = %v", err)
	}
	if _, err := NewAsset(math.MaxInt64, gov).Add(NewAsset(1, gov)); !errors.Is(err, ErrArithmetic) {
		t.Errorf("overflow Add error = %v", err)
	}
	if _, err := NewAsset(0, gov).Sub(NewAsset(math.MinInt64, gov)); !errors.Is(err, ErrArithmetic) {
		t.Errorf("MinInt64 Sub error = %v", err)
	}
}

// ─── Error Kinds ────────────────────────────────────────────────────────────

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("ballot b1: %w", ErrInvalidState), KindInvalidState},
		{fmt.Errorf("x: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("x: %w", ErrPolicyViolation), KindPolicyViolation},
		{fmt.Errorf("x: %w", ErrExpired), KindExpired},
		{fmt.Errorf("x: %w", ErrArithmetic), KindArithmetic},
		{errors.New("disk full"), KindInternal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// ─── Enumerations ───────────────────────────────────────────────────────────

func TestParseVotingMethod(t *testing.T) {
	for _, m := range VotingMethods {
		got, err := ParseVotingMethod(string(m))
		if err != nil || got != m {
			t.Errorf("ParseVotingMethod(%q) = %q, %v", m, got, err)
		}
	}
	if _, err := ParseVotingMethod("approval"); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("unknown method error = %v", err)
	}
}

func TestEnumValid(t *testing.T) {
	if !AccessMembership.Valid() || Access("open").Valid() {
		t.Error("Access.Valid mismatch")
	}
	if !CatLeaderboard.Valid() || Category("lottery").Valid() {
		t.Error("Category.Valid mismatch")
	}
	if !BallotArchived.Valid() || BallotStatus("").Valid() || BallotStatus("open").Valid() {
		t.Error("BallotStatus.Valid mismatch")
	}
}

// ─── Clone Isolation ────────────────────────────────────────────────────────

func TestBallot_Clone(t *testing.T) {
	b := &Ballot{
		Name:     "b1",
		Options:  map[string]int64{"yes": 1},
		Settings: map[string]bool{SettingRevotable: true},
		Results:  &Results{Options: map[string]int64{"yes": 1}},
	}
	c := b.Clone()
	c.Options["yes"] = 99
	c.Settings[SettingRevotable] = false
	c.Results.Options["yes"] = 99

	if b.Options["yes"] != 1 || !b.Settings[SettingRevotable] || b.Results.Options["yes"] != 1 {
		t.Errorf("clone aliases original: %+v", b)
	}
}

func TestVoteReceipt_CloneAndTotal(t *testing.T) {
	v := &VoteReceipt{
		Selections: []Selection{{Option: "a"}, {Option: "b"}},
		Weights:    map[string]int64{"a": 30, "b": 12},
	}
	if v.Total() != 42 {
		t.Errorf("Total() = %d, want 42", v.Total())
	}
	c := v.Clone()
	c.Selections[0].Option = "z"
	c.Weights["a"] = 0
	if v.Selections[0].Option != "a" || v.Weights["a"] != 30 {
		t.Errorf("clone aliases original: %+v", v)
	}
}

func TestWorker_HasUnpaidWork(t *testing.T) {
	w := NewWorker("w1", time.Unix(0, 0))
	if w.HasUnpaidWork() {
		t.Error("new worker should have no unpaid work")
	}
	w.CleanCount["b1"] = 1
	if !w.HasUnpaidWork() {
		t.Error("clean count should register as unpaid work")
	}
	c := w.Clone()
	delete(c.CleanCount, "b1")
	if !w.HasUnpaidWork() {
		t.Error("clone aliases original accumulators")
	}
}

func TestDefaultLedgerConfig(t *testing.T) {
	cfg := DefaultLedgerConfig()
	if cfg.MaxVoteReceipts != 51 {
		t.Errorf("MaxVoteReceipts = %d, want 51", cfg.MaxVoteReceipts)
	}
	if cfg.BallotFee.String() != "300.0000 TLOS" {
		t.Errorf("BallotFee = %s", cfg.BallotFee)
	}
	if cfg.MinBallotLength != 24*time.Hour || cfg.BallotCooldown != 5*24*time.Hour {
		t.Errorf("durations = %v / %v", cfg.MinBallotLength, cfg.BallotCooldown)
	}
}
