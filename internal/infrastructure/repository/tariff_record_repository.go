package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tariffio/tariff-import/internal/domain/tariff"
)

type TariffRecordRepository struct {
	pool *pgxpool.Pool
}

func NewTariffRecordRepository(pool *pgxpool.Pool) *TariffRecordRepository {
	return &TariffRecordRepository{pool: pool}
}

// UpsertChunk stages one flush of rows and applies it set-based: the last
// price per barcode wins inside the chunk, records whose barcode is
// ambiguous in the table are skipped (optionally clearing the barcode on
// the colliding records), changed prices update, unknown barcodes insert.
func (r *TariffRecordRepository) UpsertChunk(ctx context.Context, jobID, providerID string, clearDuplicates bool, records []tariff.Record) (tariff.ChunkResult, error) {
	if len(records) == 0 {
		return tariff.ChunkResult{}, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return tariff.ChunkResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		rows = append(rows, []any{jobID, int64(i), rec.Barcode, rec.Price, rec.SourceFile})
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"stg_tariff_records"},
		[]string{"job_id", "row_index", "barcode", "price", "source_file"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return tariff.ChunkResult{}, fmt.Errorf("copy records staging: %w", err)
	}

	var result tariff.ChunkResult

	ambiguous, err := resolveAmbiguousBarcodes(ctx, tx, jobID, providerID, clearDuplicates)
	if err != nil {
		return tariff.ChunkResult{}, err
	}
	if clearDuplicates {
		result.Skipped += ambiguous
	} else {
		result.Errors += ambiguous
	}

	updated, unchanged, err := updateMatchedRecords(ctx, tx, jobID, providerID)
	if err != nil {
		return tariff.ChunkResult{}, err
	}
	result.Updated += updated
	result.Skipped += unchanged

	created, err := insertNewRecords(ctx, tx, jobID, providerID)
	if err != nil {
		return tariff.ChunkResult{}, err
	}
	result.Created += created

	if _, err := tx.Exec(ctx, "DELETE FROM stg_tariff_records WHERE job_id = $1", jobID); err != nil {
		return tariff.ChunkResult{}, fmt.Errorf("cleanup staging: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return tariff.ChunkResult{}, fmt.Errorf("commit record chunk: %w", err)
	}
	return result, nil
}

// resolveAmbiguousBarcodes drops staged rows whose barcode is carried by
// more than one existing record, returning how many rows were dropped.
// With clearing enabled the colliding records also lose their barcode so
// the next run matches cleanly.
func resolveAmbiguousBarcodes(ctx context.Context, tx pgx.Tx, jobID, providerID string, clear bool) (int64, error) {
	query := `
WITH dup AS (
    SELECT r.barcode
    FROM tariff_records r
    WHERE r.provider_id = $2
      AND r.barcode IN (SELECT barcode FROM stg_tariff_records WHERE job_id = $1 AND barcode <> '')
    GROUP BY r.barcode
    HAVING COUNT(*) > 1
), removed AS (
    DELETE FROM stg_tariff_records s
    WHERE s.job_id = $1 AND s.barcode IN (SELECT barcode FROM dup)
    RETURNING s.barcode
)
SELECT COUNT(*) FROM removed
`
	if clear {
		query = `
WITH dup AS (
    SELECT r.barcode
    FROM tariff_records r
    WHERE r.provider_id = $2
      AND r.barcode IN (SELECT barcode FROM stg_tariff_records WHERE job_id = $1 AND barcode <> '')
    GROUP BY r.barcode
    HAVING COUNT(*) > 1
), cleared AS (
    UPDATE tariff_records r
    SET barcode = NULL, updated_at = NOW()
    WHERE r.provider_id = $2 AND r.barcode IN (SELECT barcode FROM dup)
    RETURNING r.id
), removed AS (
    DELETE FROM stg_tariff_records s
    WHERE s.job_id = $1 AND s.barcode IN (SELECT barcode FROM dup)
    RETURNING s.barcode
)
SELECT COUNT(*) FROM removed
`
	}

	var dropped int64
	if err := tx.QueryRow(ctx, query, jobID, providerID).Scan(&dropped); err != nil {
		return 0, fmt.Errorf("resolve ambiguous barcodes: %w", err)
	}
	return dropped, nil
}

func updateMatchedRecords(ctx context.Context, tx pgx.Tx, jobID, providerID string) (int64, int64, error) {
	var updated, matched int64
	if err := tx.QueryRow(ctx, `
WITH staged AS (
    SELECT DISTINCT ON (barcode) barcode, price, source_file
    FROM stg_tariff_records
    WHERE job_id = $1 AND barcode <> ''
    ORDER BY barcode, row_index DESC
), matched AS (
    SELECT s.barcode, s.price, s.source_file
    FROM staged s
    WHERE EXISTS (SELECT 1 FROM tariff_records r WHERE r.provider_id = $2 AND r.barcode = s.barcode)
), changed AS (
    UPDATE tariff_records r
    SET price = u.price,
        source_file = u.source_file,
        imported_at = NOW(),
        updated_at = NOW()
    FROM matched u
    WHERE r.provider_id = $2
      AND r.barcode = u.barcode
      AND r.price IS DISTINCT FROM u.price
    RETURNING r.barcode
)
SELECT (SELECT COUNT(*) FROM changed), (SELECT COUNT(*) FROM matched)
`, jobID, providerID).Scan(&updated, &matched); err != nil {
		return 0, 0, fmt.Errorf("update matched records: %w", err)
	}
	return updated, matched - updated, nil
}

func insertNewRecords(ctx context.Context, tx pgx.Tx, jobID, providerID string) (int64, error) {
	var created int64
	if err := tx.QueryRow(ctx, `
WITH staged AS (
    SELECT DISTINCT ON (barcode) barcode, price, source_file
    FROM stg_tariff_records
    WHERE job_id = $1 AND barcode <> ''
    ORDER BY barcode, row_index DESC
), inserted AS (
    INSERT INTO tariff_records (provider_id, barcode, price, source_file, imported_at, created_at, updated_at)
    SELECT $2, s.barcode, s.price, s.source_file, NOW(), NOW(), NOW()
    FROM staged s
    WHERE NOT EXISTS (
        SELECT 1 FROM tariff_records r WHERE r.provider_id = $2 AND r.barcode = s.barcode
    )
    RETURNING 1
)
SELECT COUNT(*) FROM inserted
`, jobID, providerID).Scan(&created); err != nil {
		return 0, fmt.Errorf("insert new records: %w", err)
	}
	return created, nil
}
