package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// SQLite store — traders, token checks, trades, watchlist, alerts
// ---------------------------------------------------------------------------

const schema = `
CREATE TABLE IF NOT EXISTS traders (
    address TEXT NOT NULL,
    chain TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    win_rate REAL NOT NULL DEFAULT 0,
    avg_roi REAL NOT NULL DEFAULT 0,
    max_multiplier REAL NOT NULL DEFAULT 0,
    total_volume_usd REAL NOT NULL DEFAULT 0,
    trade_count INTEGER NOT NULL DEFAULT 0,
    classification TEXT NOT NULL DEFAULT 'watch',
    flags TEXT NOT NULL DEFAULT '[]',
    sample_token TEXT,
    first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_scored TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (address, chain)
);

CREATE TABLE IF NOT EXISTS token_checks (
    token TEXT NOT NULL,
    chain TEXT NOT NULL,
    is_honeypot BOOLEAN NOT NULL,
    risk_score INTEGER NOT NULL,
    factors TEXT NOT NULL DEFAULT '[]',
    checked_at TIMESTAMP NOT NULL,
    PRIMARY KEY (token, chain, checked_at)
);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    wallet TEXT NOT NULL,
    chain TEXT NOT NULL,
    token TEXT NOT NULL,
    token_symbol TEXT,
    side TEXT NOT NULL,
    value_usd REAL NOT NULL,
    roi REAL DEFAULT 0,
    tx_hash TEXT NOT NULL,
    block_height INTEGER DEFAULT 0,
    traded_at TIMESTAMP NOT NULL,
    UNIQUE (tx_hash, wallet, side)
);

CREATE TABLE IF NOT EXISTS moonshots (
    wallet TEXT NOT NULL,
    chain TEXT NOT NULL,
    token TEXT NOT NULL,
    token_symbol TEXT,
    multiplier REAL NOT NULL,
    buy_usd REAL NOT NULL,
    sell_usd REAL NOT NULL,
    realized_at TIMESTAMP NOT NULL,
    PRIMARY KEY (wallet, chain, token)
);

CREATE TABLE IF NOT EXISTS watchlist (
    address TEXT NOT NULL,
    chain TEXT NOT NULL,
    label TEXT,
    score REAL NOT NULL DEFAULT 0,
    added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_activity TIMESTAMP,
    PRIMARY KEY (address, chain)
);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'info',
    title TEXT NOT NULL,
    detail TEXT,
    wallet TEXT,
    token TEXT,
    chain TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS key_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    service TEXT NOT NULL,
    key_hash TEXT NOT NULL,
    event TEXT NOT NULL,
    cooldown_seconds INTEGER DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scan_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    chains TEXT NOT NULL,
    candidates INTEGER NOT NULL DEFAULT 0,
    qualified INTEGER NOT NULL DEFAULT 0,
    rejected INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_traders_score ON traders(score);
CREATE INDEX IF NOT EXISTS idx_token_checks_token ON token_checks(token, chain);
CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet, chain);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(traded_at);
CREATE INDEX IF NOT EXISTS idx_moonshots_mult ON moonshots(multiplier);
CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_key_events_service ON key_events(service);
`

// Store wraps the embedded SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	log.Info().Str("component", "store").Str("path", path).Msg("store: database opened")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database handle is still usable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// ---- Traders ----

// UpsertTrader inserts or refreshes a scored trader. Re-scoring overwrites
// every metric column but keeps the original first_seen.
func (s *Store) UpsertTrader(tr TraderRecord) error {
	flags, _ := json.Marshal(tr.Flags)
	_, err := s.db.Exec(`
		INSERT INTO traders
		(address, chain, score, win_rate, avg_roi, max_multiplier, total_volume_usd,
		 trade_count, classification, flags, sample_token, first_seen, last_scored)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(address, chain) DO UPDATE SET
			score=excluded.score,
			win_rate=excluded.win_rate,
			avg_roi=excluded.avg_roi,
			max_multiplier=excluded.max_multiplier,
			total_volume_usd=excluded.total_volume_usd,
			trade_count=excluded.trade_count,
			classification=excluded.classification,
			flags=excluded.flags,
			sample_token=excluded.sample_token,
			last_scored=excluded.last_scored`,
		tr.Address, string(tr.Chain), tr.Score, tr.WinRate, tr.AvgROI, tr.MaxMultiplier,
		tr.TotalVolumeUSD, tr.TradeCount, tr.Classification, string(flags), tr.SampleToken,
		tr.FirstSeen, tr.LastScored)
	return err
}

// TopTraders returns traders at or above minScore, best first.
func (s *Store) TopTraders(minScore float64, limit int) ([]TraderRecord, error) {
	rows, err := s.db.Query(`
		SELECT address, chain, score, win_rate, avg_roi, max_multiplier, total_volume_usd,
		       trade_count, classification, flags, COALESCE(sample_token,''), first_seen, last_scored
		FROM traders WHERE score >= ?
		ORDER BY score DESC, total_volume_usd DESC LIMIT ?`, minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTraders(rows)
}

// GetTrader returns one trader or sql.ErrNoRows.
func (s *Store) GetTrader(address string, chain chains.Chain) (*TraderRecord, error) {
	row := s.db.QueryRow(`
		SELECT address, chain, score, win_rate, avg_roi, max_multiplier, total_volume_usd,
		       trade_count, classification, flags, COALESCE(sample_token,''), first_seen, last_scored
		FROM traders WHERE address=? AND chain=?`, address, string(chain))
	tr, err := scanTrader(row)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrader(r rowScanner) (TraderRecord, error) {
	var tr TraderRecord
	var chain, flags string
	err := r.Scan(&tr.Address, &chain, &tr.Score, &tr.WinRate, &tr.AvgROI, &tr.MaxMultiplier,
		&tr.TotalVolumeUSD, &tr.TradeCount, &tr.Classification, &flags, &tr.SampleToken,
		&tr.FirstSeen, &tr.LastScored)
	if err != nil {
		return tr, err
	}
	tr.Chain = chains.Chain(chain)
	if err := json.Unmarshal([]byte(flags), &tr.Flags); err != nil {
		tr.Flags = nil
	}
	return tr, nil
}

func scanTraders(rows *sql.Rows) ([]TraderRecord, error) {
	var out []TraderRecord
	for rows.Next() {
		tr, err := scanTrader(rows)
		if err != nil {
			continue
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ---- Token checks ----

// InsertTokenCheck appends a honeypot verdict. Duplicate timestamps for the
// same token are ignored.
func (s *Store) InsertTokenCheck(tc TokenCheckRecord) error {
	factors, _ := json.Marshal(tc.Factors)
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO token_checks (token, chain, is_honeypot, risk_score, factors, checked_at)
		VALUES (?,?,?,?,?,?)`,
		tc.Token, string(tc.Chain), tc.Honeypot, tc.RiskScore, string(factors), tc.CheckedAt)
	return err
}

// LatestTokenCheck returns the most recent verdict for a token, or nil.
func (s *Store) LatestTokenCheck(token string, chain chains.Chain) (*TokenCheckRecord, error) {
	var tc TokenCheckRecord
	var ch, factors string
	err := s.db.QueryRow(`
		SELECT token, chain, is_honeypot, risk_score, factors, checked_at
		FROM token_checks WHERE token=? AND chain=?
		ORDER BY checked_at DESC LIMIT 1`, token, string(chain)).
		Scan(&tc.Token, &ch, &tc.Honeypot, &tc.RiskScore, &factors, &tc.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tc.Chain = chains.Chain(ch)
	if err := json.Unmarshal([]byte(factors), &tc.Factors); err != nil {
		tc.Factors = nil
	}
	return &tc, nil
}

// ---- Trades ----

// InsertTrades writes a batch in one transaction. Rows violating the
// (tx_hash, wallet, side) uniqueness are skipped, so replays are harmless.
func (s *Store) InsertTrades(trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO trades
		(wallet, chain, token, token_symbol, side, value_usd, roi, tx_hash, block_height, traded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, t := range trades {
		if _, err := stmt.Exec(t.Wallet, string(t.Chain), t.Token, t.TokenSymbol, t.Side,
			t.ValueUSD, t.ROI, t.TxHash, t.BlockHeight, t.TradedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trade %s: %w", t.TxHash, err)
		}
	}
	return tx.Commit()
}

// TradesForWallet returns a wallet's trades, newest first.
func (s *Store) TradesForWallet(wallet string, chain chains.Chain, limit int) ([]TradeRecord, error) {
	rows, err := s.db.Query(`
		SELECT wallet, chain, token, COALESCE(token_symbol,''), side, value_usd, roi,
		       tx_hash, block_height, traded_at
		FROM trades WHERE wallet=? AND chain=?
		ORDER BY traded_at DESC LIMIT ?`, wallet, string(chain), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var ch string
		if err := rows.Scan(&t.Wallet, &ch, &t.Token, &t.TokenSymbol, &t.Side, &t.ValueUSD,
			&t.ROI, &t.TxHash, &t.BlockHeight, &t.TradedAt); err != nil {
			continue
		}
		t.Chain = chains.Chain(ch)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- Moonshots ----

// UpsertMoonshot records an exceptional multiple. A repeat on the same
// position keeps the larger multiplier.
func (s *Store) UpsertMoonshot(m MoonshotRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO moonshots (wallet, chain, token, token_symbol, multiplier, buy_usd, sell_usd, realized_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(wallet, chain, token) DO UPDATE SET
			multiplier = MAX(moonshots.multiplier, excluded.multiplier),
			sell_usd = CASE WHEN excluded.multiplier > moonshots.multiplier THEN excluded.sell_usd ELSE moonshots.sell_usd END,
			realized_at = CASE WHEN excluded.multiplier > moonshots.multiplier THEN excluded.realized_at ELSE moonshots.realized_at END`,
		m.Wallet, string(m.Chain), m.Token, m.TokenSymbol, m.Multiplier, m.BuyUSD, m.SellUSD, m.RealizedAt)
	return err
}

// TopMoonshots returns the largest realized multiples at or above the floor.
func (s *Store) TopMoonshots(minMultiplier float64, limit int) ([]MoonshotRecord, error) {
	rows, err := s.db.Query(`
		SELECT wallet, chain, token, COALESCE(token_symbol,''), multiplier, buy_usd, sell_usd, realized_at
		FROM moonshots WHERE multiplier >= ?
		ORDER BY multiplier DESC LIMIT ?`, minMultiplier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoonshotRecord
	for rows.Next() {
		var m MoonshotRecord
		var ch string
		if err := rows.Scan(&m.Wallet, &ch, &m.Token, &m.TokenSymbol, &m.Multiplier,
			&m.BuyUSD, &m.SellUSD, &m.RealizedAt); err != nil {
			continue
		}
		m.Chain = chains.Chain(ch)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Watchlist ----

func (s *Store) UpsertWatch(w WatchEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO watchlist (address, chain, label, score, added_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(address, chain) DO UPDATE SET
			label=excluded.label, score=excluded.score`,
		w.Address, string(w.Chain), w.Label, w.Score, w.AddedAt)
	return err
}

func (s *Store) RemoveWatch(address string, chain chains.Chain) error {
	_, err := s.db.Exec(`DELETE FROM watchlist WHERE address=? AND chain=?`, address, string(chain))
	return err
}

func (s *Store) Watchlist() ([]WatchEntry, error) {
	rows, err := s.db.Query(`
		SELECT address, chain, COALESCE(label,''), score, added_at, last_activity
		FROM watchlist ORDER BY score DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatchEntry
	for rows.Next() {
		var w WatchEntry
		var ch string
		if err := rows.Scan(&w.Address, &ch, &w.Label, &w.Score, &w.AddedAt, &w.LastActivity); err != nil {
			continue
		}
		w.Chain = chains.Chain(ch)
		out = append(out, w)
	}
	return out, rows.Err()
}

// TouchWatchActivity stamps the last observed on-chain activity.
func (s *Store) TouchWatchActivity(address string, chain chains.Chain, at time.Time) error {
	_, err := s.db.Exec(`UPDATE watchlist SET last_activity=? WHERE address=? AND chain=?`,
		at, address, string(chain))
	return err
}

// ---- Alerts ----

func (s *Store) InsertAlert(a AlertRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (kind, severity, title, detail, wallet, token, chain, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.Kind, a.Severity, a.Title, a.Detail, a.Wallet, a.Token, a.Chain, a.CreatedAt)
	return err
}

// InsertAlerts writes a batch of alerts in one transaction.
func (s *Store) InsertAlerts(alerts []AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO alerts (kind, severity, title, detail, wallet, token, chain, created_at)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, a := range alerts {
		if _, err := stmt.Exec(a.Kind, a.Severity, a.Title, a.Detail, a.Wallet, a.Token,
			a.Chain, a.CreatedAt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, severity, title, COALESCE(detail,''), COALESCE(wallet,''),
		       COALESCE(token,''), COALESCE(chain,''), created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.ID, &a.Kind, &a.Severity, &a.Title, &a.Detail, &a.Wallet,
			&a.Token, &a.Chain, &a.CreatedAt); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- Key events ----

// InsertKeyEvent journals a credential cooldown or recovery. Only the key
// hash ever touches disk.
func (s *Store) InsertKeyEvent(e KeyEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO key_events (service, key_hash, event, cooldown_seconds, created_at)
		VALUES (?,?,?,?,?)`,
		e.Service, e.KeyHash, e.Event, e.CooldownSeconds, e.CreatedAt)
	return err
}

func (s *Store) RecentKeyEvents(service string, limit int) ([]KeyEvent, error) {
	rows, err := s.db.Query(`
		SELECT service, key_hash, event, cooldown_seconds, created_at
		FROM key_events WHERE service=? ORDER BY created_at DESC LIMIT ?`, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyEvent
	for rows.Next() {
		var e KeyEvent
		if err := rows.Scan(&e.Service, &e.KeyHash, &e.Event, &e.CooldownSeconds, &e.CreatedAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Scan runs ----

// StartScanRun opens a sweep record and returns its id.
func (s *Store) StartScanRun(startedAt time.Time, chainList string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO scan_runs (started_at, chains) VALUES (?,?)`,
		startedAt, chainList)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishScanRun closes a sweep record with its outcome counts.
func (s *Store) FinishScanRun(id int64, finishedAt time.Time, candidates, qualified, rejected, errs int) error {
	_, err := s.db.Exec(`
		UPDATE scan_runs SET finished_at=?, candidates=?, qualified=?, rejected=?, errors=?
		WHERE id=?`, finishedAt, candidates, qualified, rejected, errs, id)
	return err
}

func (s *Store) RecentScanRuns(limit int) ([]ScanRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, chains, candidates, qualified, rejected, errors
		FROM scan_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRun
	for rows.Next() {
		var r ScanRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Chains,
			&r.Candidates, &r.Qualified, &r.Rejected, &r.Errors); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- Stats ----

// Stats returns row counts per table for the stats endpoint.
func (s *Store) Stats() map[string]int64 {
	stats := map[string]int64{}
	tables := []string{"traders", "token_checks", "trades", "moonshots", "watchlist", "alerts", "key_events", "scan_runs"}
	for _, t := range tables {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err == nil {
			stats[t] = count
		}
	}
	return stats
}
