package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"TradeSentinel/internal/model"
)

// SQLiteRecorder persists signals, trades and budget snapshots to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the engine writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			direction    TEXT,
			score        INTEGER,
			max_score    INTEGER,
			confidence   REAL,
			price        REAL,
			rules        TEXT,
			disqualifier TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			opened_at       INTEGER,
			closed_at       INTEGER,
			quantity        REAL,
			entry_price     REAL,
			stop_price      REAL,
			take_profit     REAL,
			leverage        REAL,
			score           INTEGER,
			confidence      REAL,
			state           TEXT,
			close_reason    TEXT,
			exit_price      REAL,
			realized_pnl    REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened ON trades(opened_at)`,

		`CREATE TABLE IF NOT EXISTS budget_history (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp          INTEGER NOT NULL,
			date               TEXT,
			day_start_equity   REAL,
			realized_pnl       REAL,
			daily_pnl_pct      REAL,
			consecutive_losses INTEGER,
			trades_today       INTEGER,
			halted             INTEGER,
			halt_reason        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_budget_ts ON budget_history(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func (r *SQLiteRecorder) RecordSignal(sig *model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hits []string
	for _, h := range sig.Rules {
		if h.Satisfied {
			hits = append(hits, h.Name)
		}
	}
	_, err := r.db.Exec(`INSERT INTO signals
		(timestamp, symbol, direction, score, max_score, confidence, price, rules, disqualifier)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		unix(sig.At), sig.Symbol, string(sig.Direction), sig.Score, sig.MaxScore,
		sig.Confidence, sig.Price, strings.Join(hits, ","), sig.Disqualifier,
	)
	return err
}

func (r *SQLiteRecorder) RecordTradeOpen(pos *model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO trades
		(id, symbol, opened_at, quantity, entry_price, stop_price, take_profit,
		 leverage, score, confidence, state)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		pos.ID, pos.Symbol, unix(pos.OpenedAt), pos.Quantity, pos.EntryPrice,
		pos.StopPrice, pos.TakeProfitPrice, pos.Leverage.Multiplier,
		pos.Score, pos.Confidence, string(pos.State),
	)
	return err
}

func (r *SQLiteRecorder) RecordTradeClose(pos *model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`UPDATE trades SET
		closed_at = ?, stop_price = ?, state = ?, close_reason = ?, exit_price = ?, realized_pnl = ?
		WHERE id = ?`,
		unix(pos.ClosedAt), pos.StopPrice, string(pos.State), string(pos.CloseReason),
		pos.ExitPrice, pos.RealizedPnL, pos.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.log.Warn().Str("id", pos.ID).Msg("closing unrecorded trade")
	}
	return nil
}

func (r *SQLiteRecorder) RecordBudget(b *model.RiskBudget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	halted := 0
	if b.Halted {
		halted = 1
	}
	_, err := r.db.Exec(`INSERT INTO budget_history
		(timestamp, date, day_start_equity, realized_pnl, daily_pnl_pct,
		 consecutive_losses, trades_today, halted, halt_reason)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		unix(b.UpdatedAt), b.Date, b.DayStartEquity, b.RealizedPnL, b.DailyPnLPct,
		b.ConsecutiveLosses, b.TradesToday, halted, b.HaltReason,
	)
	return err
}

// TradeCount returns the number of journaled trades, closed or not.
func (r *SQLiteRecorder) TradeCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
