package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/logger"
)

// CSVSourceID is stored on bars imported from a file without a source column value.
const CSVSourceID = "csv_import"

const defaultBatchSize = 5000

// expectedHeaders enforces strict column ordering for backfill files.
// If the header doesn't match EXACTLY (order + count), the import must fail.
var expectedHeaders = []string{
	"symbol",
	"date",
	"open",
	"high",
	"low",
	"close",
	"volume",
	"source",
}

// ImportStore is the slice of the store used by CSV backfills.
type ImportStore interface {
	UpsertBatch(ctx context.Context, bars []models.PriceBar) error
	HasImport(ctx context.Context, filename string) (bool, error)
	RecordImport(ctx context.Context, filename string, rowCount int) error
}

// ImportResult summarises one file import.
type ImportResult struct {
	File    string `json:"file"`
	Rows    int    `json:"rows"`
	Skipped bool   `json:"skipped"`
}

// ImportFile validates, parses and upserts one CSV backfill file in batches.
//
// Behavior:
//   - A file already recorded in the import log is skipped unless force is set.
//   - The header must match expectedHeaders exactly.
//   - Every row must parse and pass Validate; the first bad row fails the import.
//   - Rows are flushed through UpsertBatch, so re-importing a file is idempotent.
func ImportFile(ctx context.Context, path string, store ImportStore, batch int, force bool) (ImportResult, error) {
	base := filepath.Base(path)
	res := ImportResult{File: base}
	if batch < 1 {
		batch = defaultBatchSize
	}
	log := logger.Component("import")

	exists, err := store.HasImport(ctx, base)
	if err != nil {
		return res, fmt.Errorf("file %s: check import log: %w", base, err)
	}
	if exists && !force {
		log.Info().Str("file", base).Bool("skipped", true).Msg("already imported")
		res.Skipped = true
		return res, nil
	}

	start := time.Now()
	total, err := parseAndPersistFile(ctx, path, store, batch)
	if err != nil {
		log.Error().Str("file", base).Dur("elapsed", time.Since(start)).Err(err).Msg("file failed")
		return res, fmt.Errorf("file %s: %w", base, err)
	}
	if err := store.RecordImport(ctx, base, total); err != nil {
		return res, fmt.Errorf("file %s: record import: %w", base, err)
	}

	res.Rows = total
	log.Info().Str("file", base).Int("rows", total).Dur("elapsed", time.Since(start)).Bool("force", force).Msg("file done")
	return res, nil
}

// parseAndPersistFile opens, validates, parses, and persists one file in batches.
// It fails on:
//   - header not matching expected order/length
//   - any row that does not parse or breaks the bar invariants
//   - unrecoverable I/O errors
func parseAndPersistFile(ctx context.Context, path string, store ImportStore, batch int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1 // allow variable but we’ll check explicitly

	// Validate headers strictly.
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(expectedHeaders) {
		return 0, fmt.Errorf("invalid header length: expected %d, got %d", len(expectedHeaders), len(header))
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) != expectedHeaders[i] {
			return 0, fmt.Errorf("invalid header at col %d: expected %q, got %q", i+1, expectedHeaders[i], h)
		}
	}

	buf := make([]models.PriceBar, 0, batch)
	lineNumber := 1 // header already read
	recordedAt := time.Now().UTC()

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := store.UpsertBatch(ctx, buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}

	total := 0

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("read line after %d: %w", lineNumber, err)
		}
		lineNumber++

		if len(rec) != len(expectedHeaders) {
			return 0, fmt.Errorf("invalid column count on line %d: expected %d got %d", lineNumber, len(expectedHeaders), len(rec))
		}

		bar, err := recordToBar(rec)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		bar.RecordedAt = recordedAt
		if err := Validate(bar); err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNumber, err)
		}

		buf = append(buf, bar)
		total++
		if len(buf) >= batch {
			if err := flush(); err != nil {
				return 0, fmt.Errorf("flush batch ending line %d: %w", lineNumber, err)
			}
		}
	}

	if err := flush(); err != nil {
		return 0, fmt.Errorf("final flush: %w", err)
	}

	return total, nil
}

// recordToBar converts a single CSV record (already validated length==8)
// into a models.PriceBar.
//
// Column order:
//
//	0 symbol  → Symbol (trimmed, upper-cased)
//	1 date    → Date ("2006-01-02")
//	2 open    → Open (decimal, dot separator)
//	3 high    → High
//	4 low     → Low
//	5 close   → Close
//	6 volume  → Volume (int64, empty→0)
//	7 source  → Source (empty→"csv_import")
func recordToBar(rec []string) (models.PriceBar, error) {
	var b models.PriceBar

	b.Symbol = strings.ToUpper(strings.TrimSpace(rec[0]))

	d, err := time.Parse("2006-01-02", strings.TrimSpace(rec[1]))
	if err != nil {
		return b, fmt.Errorf("invalid date: %v", err)
	}
	b.Date = d

	prices := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close}
	for i, dst := range prices {
		v, err := decimal.NewFromString(strings.TrimSpace(rec[2+i]))
		if err != nil {
			return b, fmt.Errorf("invalid %s: %v", expectedHeaders[2+i], err)
		}
		*dst = v
	}

	if s := strings.TrimSpace(rec[6]); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return b, fmt.Errorf("invalid volume: %v", err)
		}
		b.Volume = v
	}

	b.Source = strings.TrimSpace(rec[7])
	if b.Source == "" {
		b.Source = CSVSourceID
	}

	return b, nil
}
