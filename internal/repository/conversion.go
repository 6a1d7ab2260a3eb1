package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversionStatus string

const (
	StatusSucceeded ConversionStatus = "succeeded"
	StatusFailed    ConversionStatus = "failed"
	// StatusRejected marks sources that were not valid AU streams. Retrying
	// them cannot succeed.
	StatusRejected ConversionStatus = "rejected"
)

// Conversion is one processed conversion job.
type Conversion struct {
	ID             string
	SourceKey      string
	DestinationKey string
	SampleType     string
	SampleRate     float64
	Channels       int
	PayloadBytes   int64
	Status         ConversionStatus
	Error          string
	CreatedAt      time.Time
}

// ErrNotFound is returned by Get when no conversion has the requested id.
var ErrNotFound = errors.New("conversion not found")

type ConversionRecorder interface {
	Record(ctx context.Context, conversion Conversion) error
}

type ConversionLister interface {
	List(ctx context.Context, limit int) ([]Conversion, error)
}

type PostgresConversionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresConversionRepository(db *pgxpool.Pool) *PostgresConversionRepository {
	return &PostgresConversionRepository{db: db}
}

func ConversionToRowParams(conversion Conversion) []any {
	return []any{
		conversion.ID,
		conversion.SourceKey,
		conversion.DestinationKey,
		conversion.SampleType,
		conversion.SampleRate,
		conversion.Channels,
		conversion.PayloadBytes,
		string(conversion.Status),
		conversion.Error,
	}
}

// Record stores the outcome of a conversion. A redelivered job overwrites the
// earlier outcome but keeps its creation time.
func (r *PostgresConversionRepository) Record(ctx context.Context, conversion Conversion) error {
	const recordQuery = `
	INSERT INTO conversion (
		id, source_key, destination_key, sample_type, sample_rate,
		channels, payload_bytes, status, error
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		source_key = EXCLUDED.source_key,
		destination_key = EXCLUDED.destination_key,
		sample_type = EXCLUDED.sample_type,
		sample_rate = EXCLUDED.sample_rate,
		channels = EXCLUDED.channels,
		payload_bytes = EXCLUDED.payload_bytes,
		status = EXCLUDED.status,
		error = EXCLUDED.error
	`

	if _, err := r.db.Exec(ctx, recordQuery, ConversionToRowParams(conversion)...); err != nil {
		return fmt.Errorf("failed to record conversion %s: %w", conversion.ID, err)
	}

	slog.DebugContext(
		ctx,
		"recorded conversion",
		slog.String("id", conversion.ID),
		slog.String("status", string(conversion.Status)),
	)
	return nil
}

const conversionColumns = `
	id, source_key, destination_key, sample_type, sample_rate,
	channels, payload_bytes, status, error, created_at
`

func scanConversion(row pgx.Row) (Conversion, error) {
	var c Conversion
	var status string
	err := row.Scan(
		&c.ID,
		&c.SourceKey,
		&c.DestinationKey,
		&c.SampleType,
		&c.SampleRate,
		&c.Channels,
		&c.PayloadBytes,
		&status,
		&c.Error,
		&c.CreatedAt,
	)
	c.Status = ConversionStatus(status)
	return c, err
}

func (r *PostgresConversionRepository) Get(ctx context.Context, id string) (Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversion WHERE id = $1`

	c, err := scanConversion(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversion{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversion{}, fmt.Errorf("failed to get conversion %s: %w", id, err)
	}
	return c, nil
}

// List returns the most recent conversions first.
func (r *PostgresConversionRepository) List(ctx context.Context, limit int) ([]Conversion, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	query := `SELECT ` + conversionColumns + ` FROM conversion ORDER BY created_at DESC, id LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	var conversions []Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversions: %w", err)
	}
	return conversions, nil
}

var (
	_ ConversionRecorder = (*PostgresConversionRepository)(nil)
	_ ConversionLister   = (*PostgresConversionRepository)(nil)
)
