package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficops_backend/platform/apperr"
)

// Processing statuses recorded per admissible deal.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
)

// LogEntry is one append-only audit row in webhook_logs.
type LogEntry struct {
	ID               int64     `json:"id"`
	ReceivedAt       time.Time `json:"receivedAt"`
	DealID           int64     `json:"dealId"`
	PipelineID       int64     `json:"pipelineId"`
	UTMSource        string    `json:"utmSource,omitempty"`
	UTMCampaign      string    `json:"utmCampaign,omitempty"`
	RoutingDecision  string    `json:"routingDecision"`
	ProcessingStatus string    `json:"processingStatus"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
}

// LogFilter narrows admin audit queries. Zero time bounds mean unbounded.
type LogFilter struct {
	Decision string
	Status   string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Repository provides database operations for the webhook audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one audit row. Rows are never updated or deleted.
func (r *Repository) Append(ctx context.Context, entry LogEntry) error {
	query := `
		INSERT INTO webhook_logs (
			received_at, deal_id, pipeline_id, utm_source, utm_campaign,
			routing_decision, processing_status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		entry.ReceivedAt, entry.DealID, entry.PipelineID,
		entry.UTMSource, entry.UTMCampaign,
		entry.RoutingDecision, entry.ProcessingStatus, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("append webhook log for deal %d: %w", entry.DealID, err)
	}
	return nil
}

// List returns recent audit rows, newest first.
func (r *Repository) List(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, received_at, deal_id, pipeline_id,
		       COALESCE(utm_source, ''), COALESCE(utm_campaign, ''),
		       routing_decision, processing_status, COALESCE(error_message, '')
		FROM webhook_logs
		WHERE ($1 = '' OR routing_decision = $1)
		  AND ($2 = '' OR processing_status = $2)
		  AND ($3::timestamptz IS NULL OR received_at >= $3)
		  AND ($4::timestamptz IS NULL OR received_at <= $4)
		ORDER BY received_at DESC, id DESC
		LIMIT $5 OFFSET $6`

	rows, err := r.pool.Query(ctx, query, filter.Decision, filter.Status,
		nullableTime(filter.From), nullableTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list webhook logs", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LogEntry, error) {
		var e LogEntry
		err := row.Scan(&e.ID, &e.ReceivedAt, &e.DealID, &e.PipelineID,
			&e.UTMSource, &e.UTMCampaign,
			&e.RoutingDecision, &e.ProcessingStatus, &e.ErrorMessage)
		return e, err
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan webhook logs", err)
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CountByStatus summarizes the audit log for the admin dashboard.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT processing_status, COUNT(*)
		FROM webhook_logs
		GROUP BY processing_status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "count webhook logs", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan webhook log counts: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
