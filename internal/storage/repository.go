package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"
)

// Error wraps every failure coming from the database driver.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// PriceBarRepository defines contract for DB operations on daily bars.
type PriceBarRepository interface {
	Upsert(ctx context.Context, bar models.PriceBar) error
	UpsertBatch(ctx context.Context, bars []models.PriceBar) error
	Latest(ctx context.Context, symbol string) (*models.PriceBar, error)
	Range(ctx context.Context, symbol string, since time.Time) ([]models.PriceBar, error)
	HasImport(ctx context.Context, filename string) (bool, error)
	RecordImport(ctx context.Context, filename string, rowCount int) error
	Ping(ctx context.Context) error
}

type priceBarRepository struct {
	db  *sql.DB
	dbx *sqlx.DB
}

func NewPriceBarRepository(db *sql.DB) PriceBarRepository {
	return &priceBarRepository{db: db, dbx: sqlx.NewDb(db, "postgres")}
}

const upsertSQL = `
	INSERT INTO price_bars (symbol, bar_date, source, open_price, high_price, low_price, close_price, volume, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (symbol, bar_date, source)
	DO UPDATE SET open_price = EXCLUDED.open_price,
				  high_price = EXCLUDED.high_price,
				  low_price = EXCLUDED.low_price,
				  close_price = EXCLUDED.close_price,
				  volume = EXCLUDED.volume,
				  recorded_at = EXCLUDED.recorded_at
`

const selectColumns = `symbol, bar_date, source, open_price, high_price, low_price, close_price, volume, recorded_at`

// Upsert inserts the bar or replaces the row with the same (symbol, date, source).
func (r *priceBarRepository) Upsert(ctx context.Context, bar models.PriceBar) error {
	_, err := r.db.ExecContext(ctx, upsertSQL, upsertArgs(bar)...)
	return wrap("upsert", err)
}

// UpsertBatch streams bars into a transaction-scoped staging table with COPY and
// merges them into price_bars in one statement. Either every bar lands or none.
func (r *priceBarRepository) UpsertBatch(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("upsert batch", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE price_bars_stage (LIKE price_bars INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		_ = tx.Rollback()
		return wrap("upsert batch", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"price_bars_stage",
		"symbol",
		"bar_date",
		"source",
		"open_price",
		"high_price",
		"low_price",
		"close_price",
		"volume",
		"recorded_at",
	))
	if err != nil {
		_ = tx.Rollback()
		return wrap("upsert batch", err)
	}

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx, upsertArgs(bar)...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return wrap("upsert batch", err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return wrap("upsert batch", err)
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return wrap("upsert batch", err)
	}

	// DISTINCT ON keeps the last staged row when a file repeats a key.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO price_bars (`+selectColumns+`)
		SELECT DISTINCT ON (symbol, bar_date, source) `+selectColumns+`
		FROM price_bars_stage
		ORDER BY symbol, bar_date, source, id DESC
		ON CONFLICT (symbol, bar_date, source)
		DO UPDATE SET open_price = EXCLUDED.open_price,
					  high_price = EXCLUDED.high_price,
					  low_price = EXCLUDED.low_price,
					  close_price = EXCLUDED.close_price,
					  volume = EXCLUDED.volume,
					  recorded_at = EXCLUDED.recorded_at
	`); err != nil {
		_ = tx.Rollback()
		return wrap("upsert batch", err)
	}

	return wrap("upsert batch", tx.Commit())
}

// Latest returns the most recent bar for symbol across all sources.
// Ties on date go to the lexicographically smallest source. It returns nil, nil when
// the symbol has no data.
func (r *priceBarRepository) Latest(ctx context.Context, symbol string) (*models.PriceBar, error) {
	var bar models.PriceBar
	err := r.dbx.GetContext(ctx, &bar, `
		SELECT `+selectColumns+`
		FROM price_bars
		WHERE symbol = $1
		ORDER BY bar_date DESC, source ASC
		LIMIT 1
	`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("latest", err)
	}
	normalize(&bar)
	return &bar, nil
}

// Range returns every bar for symbol dated on or after since, ascending by date then source.
func (r *priceBarRepository) Range(ctx context.Context, symbol string, since time.Time) ([]models.PriceBar, error) {
	bars := []models.PriceBar{}
	err := r.dbx.SelectContext(ctx, &bars, `
		SELECT `+selectColumns+`
		FROM price_bars
		WHERE symbol = $1 AND bar_date >= $2
		ORDER BY bar_date ASC, source ASC
	`, symbol, models.DateOnly(since))
	if err != nil {
		return nil, wrap("range", err)
	}
	for i := range bars {
		normalize(&bars[i])
	}
	return bars, nil
}

// HasImport checks if a CSV file with this name was already imported.
func (r *priceBarRepository) HasImport(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM import_log WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, wrap("has import", err)
	}
	return exists, nil
}

// RecordImport records (or updates) an import entry for a file.
func (r *priceBarRepository) RecordImport(ctx context.Context, filename string, rowCount int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_log (filename, row_count)
		VALUES ($1, $2)
		ON CONFLICT (filename)
		DO UPDATE SET row_count = EXCLUDED.row_count,
					  imported_at = NOW()
	`, filename, rowCount)
	return wrap("record import", err)
}

func (r *priceBarRepository) Ping(ctx context.Context) error {
	return wrap("ping", r.db.PingContext(ctx))
}

func upsertArgs(bar models.PriceBar) []interface{} {
	recordedAt := bar.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	return []interface{}{
		bar.Symbol,
		models.DateOnly(bar.Date),
		bar.Source,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
		recordedAt,
	}
}

// normalize pins DATE columns to UTC midnight regardless of the session time zone.
func normalize(bar *models.PriceBar) {
	bar.Date = models.DateOnly(bar.Date)
}
