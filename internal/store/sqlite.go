package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/ppmina/Xdata/internal/domain"
)

// Compile-time interface check.
var _ KlineStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS market_data (
	symbol                  TEXT NOT NULL,
	timestamp               INTEGER NOT NULL,
	freq                    TEXT NOT NULL,
	open_price              REAL,
	high_price              REAL,
	low_price               REAL,
	close_price             REAL,
	volume                  REAL,
	quote_volume            REAL,
	trades_count            INTEGER,
	taker_buy_volume        REAL,
	taker_buy_quote_volume  REAL,
	taker_sell_volume       REAL,
	taker_sell_quote_volume REAL,
	PRIMARY KEY (symbol, timestamp, freq)
);
CREATE INDEX IF NOT EXISTS idx_market_data_symbol ON market_data(symbol);
CREATE INDEX IF NOT EXISTS idx_market_data_timestamp ON market_data(timestamp);
CREATE INDEX IF NOT EXISTS idx_market_data_freq ON market_data(freq);
`

// SQLiteStore implements KlineStore backed by a SQLite database. WAL mode
// plus a busy timeout lets concurrent per-symbol writers coexist.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteKlines upserts a batch of klines inside one transaction. Re-fetched
// rows replace existing ones, so repeated downloads stay idempotent.
func (s *SQLiteStore) WriteKlines(ctx context.Context, freq domain.Freq, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO market_data (
			symbol, timestamp, freq,
			open_price, high_price, low_price, close_price,
			volume, quote_volume, trades_count,
			taker_buy_volume, taker_buy_quote_volume,
			taker_sell_volume, taker_sell_quote_volume
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, k := range klines {
		_, err := stmt.ExecContext(ctx,
			k.Symbol, k.OpenTime, freq.String(),
			k.Open, k.High, k.Low, k.Close,
			k.Volume, k.QuoteVolume, k.TradesCount,
			k.TakerBuyVolume, k.TakerBuyQuoteVolume,
			k.TakerSellVolume(), k.TakerSellQuoteVolume(),
		)
		if err != nil {
			return fmt.Errorf("inserting kline %s@%d: %w", k.Symbol, k.OpenTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing klines: %w", err)
	}
	return nil
}

// CountPoints returns the number of stored klines in [startTS, endTS].
func (s *SQLiteStore) CountPoints(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM market_data
		WHERE symbol = ? AND freq = ? AND timestamp BETWEEN ? AND ?`,
		symbol, freq.String(), startTS, endTS,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting points for %s: %w", symbol, err)
	}
	return n, nil
}

// ReadKlines returns stored klines in [startTS, endTS] ordered by open time.
func (s *SQLiteStore) ReadKlines(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) ([]domain.Kline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp,
			open_price, high_price, low_price, close_price,
			volume, quote_volume, trades_count,
			taker_buy_volume, taker_buy_quote_volume
		FROM market_data
		WHERE symbol = ? AND freq = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC`,
		symbol, freq.String(), startTS, endTS,
	)
	if err != nil {
		return nil, fmt.Errorf("reading klines for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.Kline
	for rows.Next() {
		var k domain.Kline
		err := rows.Scan(
			&k.Symbol, &k.OpenTime,
			&k.Open, &k.High, &k.Low, &k.Close,
			&k.Volume, &k.QuoteVolume, &k.TradesCount,
			&k.TakerBuyVolume, &k.TakerBuyQuoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning kline: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating klines: %w", err)
	}
	return out, nil
}

// ListSymbols returns the distinct symbols stored at the given frequency.
func (s *SQLiteStore) ListSymbols(ctx context.Context, freq domain.Freq) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM market_data WHERE freq = ? ORDER BY symbol`,
		freq.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
