package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Ledger Schema ──────────────────────────────────────────────────────────

// LedgerMigrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func LedgerMigrations() []string {
	return []string{
		// Config singleton
		`CREATE TABLE IF NOT EXISTS ledger_config (
			id   INTEGER PRIMARY KEY CHECK (id = 1),
			body TEXT NOT NULL
		)`,

		// Token registries, keyed by symbol code
		`CREATE TABLE IF NOT EXISTS registries (
			code              TEXT PRIMARY KEY,
			precision         INTEGER NOT NULL,
			supply            INTEGER NOT NULL DEFAULT 0,
			max_supply        INTEGER NOT NULL,
			voters            INTEGER NOT NULL DEFAULT 0,
			access            TEXT NOT NULL,
			locked            INTEGER NOT NULL DEFAULT 0,
			unlock_acct       TEXT NOT NULL DEFAULT '',
			unlock_auth       TEXT NOT NULL DEFAULT '',
			manager           TEXT NOT NULL,
			settings          TEXT NOT NULL DEFAULT '{}',
			open_ballots      INTEGER NOT NULL DEFAULT 0,
			rebalanced_volume INTEGER NOT NULL DEFAULT 0,
			rebalanced_count  INTEGER NOT NULL DEFAULT 0,
			fee_reserve       INTEGER NOT NULL DEFAULT 0,
			updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Ballots
		`CREATE TABLE IF NOT EXISTS ballots (
			name           TEXT PRIMARY KEY,
			category       TEXT NOT NULL,
			publisher      TEXT NOT NULL,
			status         TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			info           TEXT NOT NULL DEFAULT '',
			method         TEXT NOT NULL,
			max_options    INTEGER NOT NULL DEFAULT 1,
			options        TEXT NOT NULL DEFAULT '{}',
			code           TEXT NOT NULL,
			precision      INTEGER NOT NULL,
			total_votes    INTEGER NOT NULL DEFAULT 0,
			total_voters   INTEGER NOT NULL DEFAULT 0,
			settings       TEXT NOT NULL DEFAULT '{}',
			cleaned_volume INTEGER NOT NULL DEFAULT 0,
			cleaned_count  INTEGER NOT NULL DEFAULT 0,
			begin_time     TEXT NOT NULL,
			end_time       TEXT NOT NULL,
			results        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ballots_status ON ballots(status)`,

		// Vote receipts, one per (voter, ballot)
		`CREATE TABLE IF NOT EXISTS vote_receipts (
			voter      TEXT NOT NULL,
			ballot     TEXT NOT NULL,
			code       TEXT NOT NULL,
			precision  INTEGER NOT NULL,
			selections TEXT NOT NULL,
			weights    TEXT NOT NULL,
			raw        INTEGER NOT NULL,
			expiration TEXT NOT NULL,
			PRIMARY KEY (voter, ballot)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_ballot ON vote_receipts(ballot)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_voter_code ON vote_receipts(voter, code)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_expiration ON vote_receipts(voter, expiration)`,

		// Accounts, one per (voter, registry)
		`CREATE TABLE IF NOT EXISTS accounts (
			voter     TEXT NOT NULL,
			code      TEXT NOT NULL,
			precision INTEGER NOT NULL,
			balance   INTEGER NOT NULL DEFAULT 0,
			staked    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (voter, code)
		)`,

		// Workers and their unpaid accumulators
		`CREATE TABLE IF NOT EXISTS workers (
			name             TEXT PRIMARY KEY,
			standing         TEXT NOT NULL,
			last_payment     TEXT NOT NULL,
			rebalance_volume TEXT NOT NULL DEFAULT '{}',
			rebalance_count  TEXT NOT NULL DEFAULT '{}',
			clean_volume     TEXT NOT NULL DEFAULT '{}',
			clean_count      TEXT NOT NULL DEFAULT '{}'
		)`,

		// Archive windows
		`CREATE TABLE IF NOT EXISTS archivals (
			ballot         TEXT PRIMARY KEY,
			archived_until TEXT NOT NULL,
			prior_status   TEXT NOT NULL
		)`,
	}
}

// ─── Transaction ────────────────────────────────────────────────────────────

type ledgerTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *ledgerTx) exec(query string, args ...any) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, query, args...)
	return err
}

// execDelete runs a DELETE and reports a missing row as ErrNotFound.
func (t *ledgerTx) execDelete(kind, key, query string, args ...any) error {
	if t.readOnly {
		return errReadOnly
	}
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, key)
	}
	return nil
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, domain.ErrNotFound)
}

// ─── Config ─────────────────────────────────────────────────────────────────

func (t *ledgerTx) Config() (domain.LedgerConfig, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx, `SELECT body FROM ledger_config WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultLedgerConfig(), nil
	}
	if err != nil {
		return domain.LedgerConfig{}, err
	}
	var cfg domain.LedgerConfig
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return domain.LedgerConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (t *ledgerTx) PutConfig(cfg domain.LedgerConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return t.exec(`
		INSERT INTO ledger_config (id, body) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, string(body))
}

// ─── Registries ─────────────────────────────────────────────────────────────

const registryColumns = `code, precision, supply, max_supply, voters, access, locked,
	unlock_acct, unlock_auth, manager, settings, open_ballots,
	rebalanced_volume, rebalanced_count, fee_reserve`

func scanRegistry(row interface{ Scan(...any) error }) (*domain.Registry, error) {
	var (
		r                                      domain.Registry
		code                                   string
		precision                              uint8
		supply, maxSupply, rebalanced, reserve int64
		locked                                 bool
		settings                               string
	)
	err := row.Scan(&code, &precision, &supply, &maxSupply, &r.Voters, &r.Access, &locked,
		&r.UnlockAcct, &r.UnlockAuth, &r.Manager, &settings, &r.OpenBallots,
		&rebalanced, &r.RebalancedCount, &reserve)
	if err != nil {
		return nil, err
	}
	sym := domain.NewSymbol(code, precision)
	r.Supply = domain.NewAsset(supply, sym)
	r.MaxSupply = domain.NewAsset(maxSupply, sym)
	r.RebalancedVolume = domain.NewAsset(rebalanced, sym)
	r.FeeReserve = domain.NewAsset(reserve, sym)
	r.Locked = locked
	if err := decodeMap(settings, &r.Settings); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *ledgerTx) Registry(code string) (*domain.Registry, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+registryColumns+` FROM registries WHERE code = ?`, code)
	r, err := scanRegistry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("registry", code)
	}
	return r, err
}

func (t *ledgerTx) PutRegistry(r *domain.Registry) error {
	settings, err := encodeMap(r.Settings)
	if err != nil {
		return err
	}
	sym := r.Symbol()
	return t.exec(`
		INSERT INTO registries (`+registryColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(code) DO UPDATE SET
			precision         = excluded.precision,
			supply            = excluded.supply,
			max_supply        = excluded.max_supply,
			voters            = excluded.voters,
			access            = excluded.access,
			locked            = excluded.locked,
			unlock_acct       = excluded.unlock_acct,
			unlock_auth       = excluded.unlock_auth,
			manager           = excluded.manager,
			settings          = excluded.settings,
			open_ballots      = excluded.open_ballots,
			rebalanced_volume = excluded.rebalanced_volume,
			rebalanced_count  = excluded.rebalanced_count,
			fee_reserve       = excluded.fee_reserve,
			updated_at        = datetime('now')
	`, sym.Code, sym.Precision, r.Supply.Amount, r.MaxSupply.Amount, r.Voters, string(r.Access), r.Locked,
		r.UnlockAcct, r.UnlockAuth, r.Manager, settings, r.OpenBallots,
		r.RebalancedVolume.Amount, r.RebalancedCount, r.FeeReserve.Amount)
}

func (t *ledgerTx) Registries() ([]*domain.Registry, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+registryColumns+` FROM registries ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Registry
	for rows.Next() {
		r, err := scanRegistry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Ballots ────────────────────────────────────────────────────────────────

const ballotColumns = `name, category, publisher, status, title, description, info, method,
	max_options, options, code, precision, total_votes, total_voters, settings,
	cleaned_volume, cleaned_count, begin_time, end_time, results`

func scanBallot(row interface{ Scan(...any) error }) (*domain.Ballot, error) {
	var (
		b                 domain.Ballot
		code              string
		precision         uint8
		options, settings string
		begin, end        string
		results           sql.NullString
	)
	err := row.Scan(&b.Name, &b.Category, &b.Publisher, &b.Status, &b.Title, &b.Description, &b.Info, &b.Method,
		&b.MaxOptions, &options, &code, &precision, &b.TotalVotes, &b.TotalVoters, &settings,
		&b.CleanedVolume, &b.CleanedCount, &begin, &end, &results)
	if err != nil {
		return nil, err
	}
	b.Symbol = domain.NewSymbol(code, precision)
	if err := decodeMap(options, &b.Options); err != nil {
		return nil, err
	}
	if err := decodeMap(settings, &b.Settings); err != nil {
		return nil, err
	}
	if b.BeginTime, err = parseTime(begin); err != nil {
		return nil, err
	}
	if b.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if results.Valid {
		b.Results = new(domain.Results)
		if err := json.Unmarshal([]byte(results.String), b.Results); err != nil {
			return nil, fmt.Errorf("decode results for %s: %w", b.Name, err)
		}
	}
	return &b, nil
}

func (t *ledgerTx) Ballot(name string) (*domain.Ballot, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+ballotColumns+` FROM ballots WHERE name = ?`, name)
	b, err := scanBallot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("ballot", name)
	}
	return b, err
}

func (t *ledgerTx) PutBallot(b *domain.Ballot) error {
	options, err := encodeMap(b.Options)
	if err != nil {
		return err
	}
	settings, err := encodeMap(b.Settings)
	if err != nil {
		return err
	}
	var results sql.NullString
	if b.Results != nil {
		body, err := json.Marshal(b.Results)
		if err != nil {
			return err
		}
		results = sql.NullString{String: string(body), Valid: true}
	}
	return t.exec(`
		INSERT INTO ballots (`+ballotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category       = excluded.category,
			publisher      = excluded.publisher,
			status         = excluded.status,
			title          = excluded.title,
			description    = excluded.description,
			info           = excluded.info,
			method         = excluded.method,
			max_options    = excluded.max_options,
			options        = excluded.options,
			code           = excluded.code,
			precision      = excluded.precision,
			total_votes    = excluded.total_votes,
			total_voters   = excluded.total_voters,
			settings       = excluded.settings,
			cleaned_volume = excluded.cleaned_volume,
			cleaned_count  = excluded.cleaned_count,
			begin_time     = excluded.begin_time,
			end_time       = excluded.end_time,
			results        = excluded.results
	`, b.Name, string(b.Category), b.Publisher, string(b.Status), b.Title, b.Description, b.Info, string(b.Method),
		b.MaxOptions, options, b.Symbol.Code, b.Symbol.Precision, b.TotalVotes, b.TotalVoters, settings,
		b.CleanedVolume, b.CleanedCount, formatTime(b.BeginTime), formatTime(b.EndTime), results)
}

func (t *ledgerTx) DeleteBallot(name string) error {
	return t.execDelete("ballot", name, `DELETE FROM ballots WHERE name = ?`, name)
}

func (t *ledgerTx) Ballots() ([]*domain.Ballot, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+ballotColumns+` FROM ballots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Ballot
	for rows.Next() {
		b, err := scanBallot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Vote Receipts ──────────────────────────────────────────────────────────

const receiptColumns = `voter, ballot, code, precision, selections, weights, raw, expiration`

func scanReceipt(row interface{ Scan(...any) error }) (*domain.VoteReceipt, error) {
	var (
		v                   domain.VoteReceipt
		code                string
		precision           uint8
		selections, weights string
		expiration          string
	)
	err := row.Scan(&v.Voter, &v.Ballot, &code, &precision, &selections, &weights, &v.Raw, &expiration)
	if err != nil {
		return nil, err
	}
	v.Symbol = domain.NewSymbol(code, precision)
	if err := json.Unmarshal([]byte(selections), &v.Selections); err != nil {
		return nil, fmt.Errorf("decode selections: %w", err)
	}
	if err := decodeMap(weights, &v.Weights); err != nil {
		return nil, err
	}
	if v.Expiration, err = parseTime(expiration); err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *ledgerTx) Receipt(voter, ballot string) (*domain.VoteReceipt, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+receiptColumns+` FROM vote_receipts WHERE voter = ? AND ballot = ?`, voter, ballot)
	v, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("vote receipt", voter+"/"+ballot)
	}
	return v, err
}

func (t *ledgerTx) PutReceipt(v *domain.VoteReceipt) error {
	selections, err := json.Marshal(v.Selections)
	if err != nil {
		return err
	}
	weights, err := encodeMap(v.Weights)
	if err != nil {
		return err
	}
	return t.exec(`
		INSERT INTO vote_receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(voter, ballot) DO UPDATE SET
			code       = excluded.code,
			precision  = excluded.precision,
			selections = excluded.selections,
			weights    = excluded.weights,
			raw        = excluded.raw,
			expiration = excluded.expiration
	`, v.Voter, v.Ballot, v.Symbol.Code, v.Symbol.Precision, string(selections), weights, v.Raw, formatTime(v.Expiration))
}

func (t *ledgerTx) DeleteReceipt(voter, ballot string) error {
	return t.execDelete("vote receipt", voter+"/"+ballot,
		`DELETE FROM vote_receipts WHERE voter = ? AND ballot = ?`, voter, ballot)
}

// DeleteBallotReceipts removes every voter's receipt on ballot.
func (t *ledgerTx) DeleteBallotReceipts(ballot string) (int, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM vote_receipts WHERE ballot = ?`, ballot)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *ledgerTx) Receipts(voter string) ([]*domain.VoteReceipt, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+receiptColumns+` FROM vote_receipts WHERE voter = ? ORDER BY ballot`, voter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.VoteReceipt
	for rows.Next() {
		v, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── Accounts ───────────────────────────────────────────────────────────────

func (t *ledgerTx) Account(voter, code string) (*domain.Account, error) {
	var (
		precision       uint8
		balance, staked int64
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT precision, balance, staked FROM accounts WHERE voter = ? AND code = ?
	`, voter, code).Scan(&precision, &balance, &staked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", voter+"/"+code)
	}
	if err != nil {
		return nil, err
	}
	sym := domain.NewSymbol(code, precision)
	return &domain.Account{
		Voter:   voter,
		Balance: domain.NewAsset(balance, sym),
		Staked:  domain.NewAsset(staked, sym),
	}, nil
}

func (t *ledgerTx) PutAccount(a *domain.Account) error {
	sym := a.Balance.Symbol
	return t.exec(`
		INSERT INTO accounts (voter, code, precision, balance, staked)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(voter, code) DO UPDATE SET
			precision = excluded.precision,
			balance   = excluded.balance,
			staked    = excluded.staked
	`, a.Voter, sym.Code, sym.Precision, a.Balance.Amount, a.Staked.Amount)
}

func (t *ledgerTx) DeleteAccount(voter, code string) error {
	return t.execDelete("account", voter+"/"+code,
		`DELETE FROM accounts WHERE voter = ? AND code = ?`, voter, code)
}

// ─── Workers ────────────────────────────────────────────────────────────────

func (t *ledgerTx) Worker(name string) (*domain.Worker, error) {
	var (
		w                              domain.Worker
		lastPayment                    string
		rbVol, rbCount, clVol, clCount string
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT name, standing, last_payment, rebalance_volume, rebalance_count, clean_volume, clean_count
		FROM workers WHERE name = ?
	`, name).Scan(&w.Name, &w.Standing, &lastPayment, &rbVol, &rbCount, &clVol, &clCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("worker", name)
	}
	if err != nil {
		return nil, err
	}
	if w.LastPayment, err = parseTime(lastPayment); err != nil {
		return nil, err
	}
	for _, m := range []struct {
		raw string
		dst any
	}{
		{rbVol, &w.RebalanceVolume},
		{rbCount, &w.RebalanceCount},
		{clVol, &w.CleanVolume},
		{clCount, &w.CleanCount},
	} {
		if err := json.Unmarshal([]byte(m.raw), m.dst); err != nil {
			return nil, fmt.Errorf("decode worker %s: %w", name, err)
		}
	}
	// Accumulators are written to directly; never hand out nil maps.
	if w.RebalanceVolume == nil {
		w.RebalanceVolume = make(map[string]int64)
	}
	if w.RebalanceCount == nil {
		w.RebalanceCount = make(map[string]uint32)
	}
	if w.CleanVolume == nil {
		w.CleanVolume = make(map[string]int64)
	}
	if w.CleanCount == nil {
		w.CleanCount = make(map[string]uint32)
	}
	return &w, nil
}

func (t *ledgerTx) PutWorker(w *domain.Worker) error {
	enc := make([]string, 4)
	for i, m := range []any{w.RebalanceVolume, w.RebalanceCount, w.CleanVolume, w.CleanCount} {
		body, err := json.Marshal(m)
		if err != nil {
			return err
		}
		enc[i] = string(body)
	}
	return t.exec(`
		INSERT INTO workers (name, standing, last_payment, rebalance_volume, rebalance_count, clean_volume, clean_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			standing         = excluded.standing,
			last_payment     = excluded.last_payment,
			rebalance_volume = excluded.rebalance_volume,
			rebalance_count  = excluded.rebalance_count,
			clean_volume     = excluded.clean_volume,
			clean_count      = excluded.clean_count
	`, w.Name, string(w.Standing), formatTime(w.LastPayment), enc[0], enc[1], enc[2], enc[3])
}

func (t *ledgerTx) DeleteWorker(name string) error {
	return t.execDelete("worker", name, `DELETE FROM workers WHERE name = ?`, name)
}

// ─── Archivals ──────────────────────────────────────────────────────────────

func (t *ledgerTx) Archival(ballot string) (*domain.Archival, error) {
	var (
		a     domain.Archival
		until string
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT ballot, archived_until, prior_status FROM archivals WHERE ballot = ?
	`, ballot).Scan(&a.Ballot, &until, &a.PriorStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("archival", ballot)
	}
	if err != nil {
		return nil, err
	}
	if a.ArchivedUntil, err = parseTime(until); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *ledgerTx) PutArchival(a *domain.Archival) error {
	return t.exec(`
		INSERT INTO archivals (ballot, archived_until, prior_status)
		VALUES (?, ?, ?)
		ON CONFLICT(ballot) DO UPDATE SET
			archived_until = excluded.archived_until,
			prior_status   = excluded.prior_status
	`, a.Ballot, formatTime(a.ArchivedUntil), string(a.PriorStatus))
}

func (t *ledgerTx) DeleteArchival(ballot string) error {
	return t.execDelete("archival", ballot, `DELETE FROM archivals WHERE ballot = ?`, ballot)
}

// ─── Encoding ───────────────────────────────────────────────────────────────

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func encodeMap[V any](m map[string]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	body, err := json.Marshal(m)
	return string(body), err
}

func decodeMap[V any](s string, dst *map[string]V) error {
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("decode map column: %w", err)
	}
	if *dst == nil {
		*dst = make(map[string]V)
	}
	return nil
}
