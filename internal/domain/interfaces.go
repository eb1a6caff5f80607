package domain

import (
	"context"
	"time"
)

// ─── Storage Interfaces ─────────────────────────────────────────────────────
// The ledger persists five keyed collections (registries, ballots, receipts,
// accounts, workers) plus archivals and the config singleton. Infrastructure
// implements Store; the governance engine depends only on these interfaces.

// Tx is a read/write view of ledger state inside one invocation. Getters
// return an error wrapping ErrNotFound for missing records and always hand
// out copies: mutating a returned value changes nothing until it is Put.
type Tx interface {
	Config() (LedgerConfig, error)
	PutConfig(cfg LedgerConfig) error

	Registry(code string) (*Registry, error)
	PutRegistry(r *Registry) error
	Registries() ([]*Registry, error)

	Ballot(name string) (*Ballot, error)
	PutBallot(b *Ballot) error
	DeleteBallot(name string) error
	Ballots() ([]*Ballot, error)

	Receipt(voter, ballot string) (*VoteReceipt, error)
	PutReceipt(v *VoteReceipt) error
	DeleteReceipt(voter, ballot string) error
	Receipts(voter string) ([]*VoteReceipt, error) // ordered by ballot name
	DeleteBallotReceipts(ballot string) (int, error)

	Account(voter, code string) (*Account, error)
	PutAccount(a *Account) error
	DeleteAccount(voter, code string) error

	Worker(name string) (*Worker, error)
	PutWorker(w *Worker) error
	DeleteWorker(name string) error

	Archival(ballot string) (*Archival, error)
	PutArchival(a *Archival) error
	DeleteArchival(ballot string) error
}

// Store runs invocations. Update commits every write made by fn if fn
// returns nil and discards all of them otherwise.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}

// ─── Events ─────────────────────────────────────────────────────────────────

// EventType names a committed ledger event.
type EventType string

const (
	EventBallotReady     EventType = "ballot_ready"
	EventBallotClosed    EventType = "ballot_closed"
	EventBallotCancelled EventType = "ballot_cancelled"
	EventBallotDeleted   EventType = "ballot_deleted"
	EventVoteCast        EventType = "vote_cast"
	EventVoteRetracted   EventType = "vote_retracted"
	EventRebalanced      EventType = "rebalanced"
	EventCleaned         EventType = "cleaned"
	EventWorkerPaid      EventType = "worker_paid"
)

// Event is published after an invocation commits.
type Event struct {
	Type   EventType         `json:"type"`
	At     time.Time         `json:"at"`
	Ballot string            `json:"ballot,omitempty"`
	Voter  string            `json:"voter,omitempty"`
	Worker string            `json:"worker,omitempty"`
	Symbol string            `json:"symbol,omitempty"`
	Amount int64             `json:"amount,omitempty"`
	Count  int               `json:"count,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// EventPublisher delivers committed events. Delivery failures never undo
// the invocation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
