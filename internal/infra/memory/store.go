// Package memory implements domain.Store entirely in process memory.
//
// Update runs against a copy of the collection maps and swaps it in only when
// the invocation succeeds, so a failed action leaves no partial writes.
// Records are stored by value-copy: nothing outside the store can alias them.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tutu-network/trail/internal/domain"
)

// errReadOnly is returned by writes attempted inside View.
var errReadOnly = errors.New("memory: write in read-only transaction")

type state struct {
	config     *domain.LedgerConfig
	registries map[string]*domain.Registry
	ballots    map[string]*domain.Ballot
	receipts   map[string]map[string]*domain.VoteReceipt // voter → ballot → receipt
	accounts   map[string]map[string]*domain.Account     // voter → symbol code → account
	workers    map[string]*domain.Worker
	archivals  map[string]*domain.Archival
}

func newState() *state {
	return &state{
		registries: make(map[string]*domain.Registry),
		ballots:    make(map[string]*domain.Ballot),
		receipts:   make(map[string]map[string]*domain.VoteReceipt),
		accounts:   make(map[string]map[string]*domain.Account),
		workers:    make(map[string]*domain.Worker),
		archivals:  make(map[string]*domain.Archival),
	}
}

// fork copies every map level. Record pointers are shared; records are
// never mutated in place, only replaced.
func (s *state) fork() *state {
	f := &state{
		config:     s.config,
		registries: maps.Clone(s.registries),
		ballots:    maps.Clone(s.ballots),
		receipts:   make(map[string]map[string]*domain.VoteReceipt, len(s.receipts)),
		accounts:   make(map[string]map[string]*domain.Account, len(s.accounts)),
		workers:    maps.Clone(s.workers),
		archivals:  maps.Clone(s.archivals),
	}
	for voter, m := range s.receipts {
		f.receipts[voter] = maps.Clone(m)
	}
	for voter, m := range s.accounts {
		f.accounts[voter] = maps.Clone(m)
	}
	return f
}

// Store is a thread-safe in-memory ledger store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// View runs fn against the committed state. Writes fail.
func (s *Store) View(ctx context.Context, fn func(domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state, readOnly: true})
}

// Update runs fn against a fork of the state and commits it if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fork := s.state.fork()
	if err := fn(&tx{st: fork}); err != nil {
		return err
	}
	s.state = fork
	return nil
}

// ─── Transaction ────────────────────────────────────────────────────────────

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, domain.ErrNotFound)
}

func (t *tx) Config() (domain.LedgerConfig, error) {
	if t.st.config == nil {
		return domain.DefaultLedgerConfig(), nil
	}
	return *t.st.config, nil
}

func (t *tx) PutConfig(cfg domain.LedgerConfig) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.config = &cfg
	return nil
}

func (t *tx) Registry(code string) (*domain.Registry, error) {
	r, ok := t.st.registries[code]
	if !ok {
		return nil, notFound("registry", code)
	}
	return r.Clone(), nil
}

func (t *tx) PutRegistry(r *domain.Registry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.registries[r.Symbol().Code] = r.Clone()
	return nil
}

func (t *tx) Registries() ([]*domain.Registry, error) {
	out := make([]*domain.Registry, 0, len(t.st.registries))
	for _, code := range slices.Sorted(maps.Keys(t.st.registries)) {
		out = append(out, t.st.registries[code].Clone())
	}
	return out, nil
}

func (t *tx) Ballot(name string) (*domain.Ballot, error) {
	b, ok := t.st.ballots[name]
	if !ok {
		return nil, notFound("ballot", name)
	}
	return b.Clone(), nil
}

func (t *tx) PutBallot(b *domain.Ballot) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.ballots[b.Name] = b.Clone()
	return nil
}

func (t *tx) DeleteBallot(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.ballots[name]; !ok {
		return notFound("ballot", name)
	}
	delete(t.st.ballots, name)
	return nil
}

func (t *tx) Ballots() ([]*domain.Ballot, error) {
	out := make([]*domain.Ballot, 0, len(t.st.ballots))
	for _, name := range slices.Sorted(maps.Keys(t.st.ballots)) {
		out = append(out, t.st.ballots[name].Clone())
	}
	return out, nil
}

func (t *tx) Receipt(voter, ballot string) (*domain.VoteReceipt, error) {
	v, ok := t.st.receipts[voter][ballot]
	if !ok {
		return nil, notFound("vote receipt", voter+"/"+ballot)
	}
	return v.Clone(), nil
}

func (t *tx) PutReceipt(v *domain.VoteReceipt) error {
	if err := t.writable(); err != nil {
		return err
	}
	m, ok := t.st.receipts[v.Voter]
	if !ok {
		m = make(map[string]*domain.VoteReceipt)
		t.st.receipts[v.Voter] = m
	}
	m[v.Ballot] = v.Clone()
	return nil
}

func (t *tx) DeleteReceipt(voter, ballot string) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := t.st.receipts[voter]
	if _, ok := m[ballot]; !ok {
		return notFound("vote receipt", voter+"/"+ballot)
	}
	delete(m, ballot)
	if len(m) == 0 {
		delete(t.st.receipts, voter)
	}
	return nil
}

func (t *tx) DeleteBallotReceipts(ballot string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int
	for voter, m := range t.st.receipts {
		if _, ok := m[ballot]; !ok {
			continue
		}
		delete(m, ballot)
		n++
		if len(m) == 0 {
			delete(t.st.receipts, voter)
		}
	}
	return n, nil
}

func (t *tx) Receipts(voter string) ([]*domain.VoteReceipt, error) {
	m := t.st.receipts[voter]
	out := make([]*domain.VoteReceipt, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[name].Clone())
	}
	return out, nil
}

func (t *tx) Account(voter, code string) (*domain.Account, error) {
	a, ok := t.st.accounts[voter][code]
	if !ok {
		return nil, notFound("account", voter+"/"+code)
	}
	return a.Clone(), nil
}

func (t *tx) PutAccount(a *domain.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	m, ok := t.st.accounts[a.Voter]
	if !ok {
		m = make(map[string]*domain.Account)
		t.st.accounts[a.Voter] = m
	}
	m[a.Balance.Symbol.Code] = a.Clone()
	return nil
}

func (t *tx) DeleteAccount(voter, code string) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := t.st.accounts[voter]
	if _, ok := m[code]; !ok {
		return notFound("account", voter+"/"+code)
	}
	delete(m, code)
	if len(m) == 0 {
		delete(t.st.accounts, voter)
	}
	return nil
}

func (t *tx) Worker(name string) (*domain.Worker, error) {
	w, ok := t.st.workers[name]
	if !ok {
		return nil, notFound("worker", name)
	}
	return w.Clone(), nil
}

func (t *tx) PutWorker(w *domain.Worker) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.workers[w.Name] = w.Clone()
	return nil
}

func (t *tx) DeleteWorker(name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.workers[name]; !ok {
		return notFound("worker", name)
	}
	delete(t.st.workers, name)
	return nil
}

func (t *tx) Archival(ballot string) (*domain.Archival, error) {
	a, ok := t.st.archivals[ballot]
	if !ok {
		return nil, notFound("archival", ballot)
	}
	c := *a
	return &c, nil
}

func (t *tx) PutArchival(a *domain.Archival) error {
	if err := t.writable(); err != nil {
		return err
	}
	c := *a
	t.st.archivals[a.Ballot] = &c
	return nil
}

func (t *tx) DeleteArchival(ballot string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.archivals[ballot]; !ok {
		return notFound("archival", ballot)
	}
	delete(t.st.archivals, ballot)
	return nil
}
