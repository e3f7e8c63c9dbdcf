package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for sales tracking.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new tracking repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertSale writes one sale into all_sales_tracking. The whole
// insert-or-update is a single statement so concurrent deliveries of the
// same deal cannot race. A conflicting row is updated only when price or
// utm_source actually changed; otherwise the write is reported skipped.
func (r *Repository) UpsertSale(ctx context.Context, rec SaleRecord) (Outcome, error) {
	query := `
		INSERT INTO all_sales_tracking (
			deal_id, deal_name, price, targetologist,
			funnel_type, funnel_auto_detected, detection_method,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term, utm_referrer, fbclid,
			status_id, pipeline_id, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (deal_id) DO UPDATE SET
			deal_name = EXCLUDED.deal_name,
			price = EXCLUDED.price,
			targetologist = EXCLUDED.targetologist,
			funnel_type = EXCLUDED.funnel_type,
			funnel_auto_detected = EXCLUDED.funnel_auto_detected,
			detection_method = EXCLUDED.detection_method,
			utm_source = EXCLUDED.utm_source,
			utm_medium = EXCLUDED.utm_medium,
			utm_campaign = EXCLUDED.utm_campaign,
			utm_content = EXCLUDED.utm_content,
			utm_term = EXCLUDED.utm_term,
			utm_referrer = EXCLUDED.utm_referrer,
			fbclid = EXCLUDED.fbclid,
			status_id = EXCLUDED.status_id,
			pipeline_id = EXCLUDED.pipeline_id,
			closed_at = EXCLUDED.closed_at,
			updated_at = now()
		WHERE all_sales_tracking.price IS DISTINCT FROM EXCLUDED.price
		   OR all_sales_tracking.utm_source IS DISTINCT FROM EXCLUDED.utm_source
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		rec.DealID, rec.DealName, rec.Price, rec.Targetologist,
		rec.FunnelType, rec.AutoDetected, rec.DetectionMethod,
		rec.UTM.Source, rec.UTM.Medium, rec.UTM.Campaign, rec.UTM.Content,
		rec.UTM.Term, rec.UTM.Referrer, rec.UTM.ClickID,
		rec.StatusID, rec.PipelineID, rec.ClosedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("upsert sale %d: %w", rec.DealID, err)
	}
	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

// UpsertChallenge3DSale writes one challenge sale with its resolved
// origin attribution. Same conflict semantics as UpsertSale.
func (r *Repository) UpsertChallenge3DSale(ctx context.Context, rec Challenge3DRecord) (Outcome, error) {
	query := `
		INSERT INTO challenge3d_sales (
			deal_id, deal_name, price, targetologist,
			utm_source, utm_medium, utm_campaign,
			original_utm_source, original_utm_medium, original_utm_campaign, origin_source,
			related_deal_id, prepaid, phone, email, status_id, pipeline_id, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (deal_id) DO UPDATE SET
			deal_name = EXCLUDED.deal_name,
			price = EXCLUDED.price,
			targetologist = EXCLUDED.targetologist,
			utm_source = EXCLUDED.utm_source,
			utm_medium = EXCLUDED.utm_medium,
			utm_campaign = EXCLUDED.utm_campaign,
			original_utm_source = EXCLUDED.original_utm_source,
			original_utm_medium = EXCLUDED.original_utm_medium,
			original_utm_campaign = EXCLUDED.original_utm_campaign,
			origin_source = EXCLUDED.origin_source,
			related_deal_id = EXCLUDED.related_deal_id,
			prepaid = EXCLUDED.prepaid,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			status_id = EXCLUDED.status_id,
			pipeline_id = EXCLUDED.pipeline_id,
			closed_at = EXCLUDED.closed_at,
			updated_at = now()
		WHERE challenge3d_sales.price IS DISTINCT FROM EXCLUDED.price
		   OR challenge3d_sales.utm_source IS DISTINCT FROM EXCLUDED.utm_source
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		rec.DealID, rec.DealName, rec.Price, rec.Targetologist,
		rec.UTM.Source, rec.UTM.Medium, rec.UTM.Campaign,
		rec.OriginalSource, rec.OriginalMedium, rec.OriginCampaign, rec.OriginSource,
		nullableID(rec.RelatedDealID), rec.Prepaid, rec.Phone, rec.Email, rec.StatusID, rec.PipelineID, rec.ClosedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("upsert challenge3d sale %d: %w", rec.DealID, err)
	}
	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

// nullableID maps 0 to NULL for optional foreign deal references.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// CreateNotification registers a pending notification for a deal.
// Returns OutcomeSkipped when the deal already has one, which is what
// keeps duplicate webhooks from notifying twice.
func (r *Repository) CreateNotification(ctx context.Context, dealID int64, message string) (Outcome, error) {
	query := `
		INSERT INTO sales_notifications (deal_id, message, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (deal_id) DO NOTHING
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, dealID, message).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("create notification for deal %d: %w", dealID, err)
	}
	return OutcomeInserted, nil
}

// MarkNotificationSent records successful delivery.
func (r *Repository) MarkNotificationSent(ctx context.Context, dealID int64) error {
	query := `
		UPDATE sales_notifications
		SET status = 'sent', sent_at = $2, last_error = ''
		WHERE deal_id = $1`

	if _, err := r.pool.Exec(ctx, query, dealID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification sent for deal %d: %w", dealID, err)
	}
	return nil
}

// MarkNotificationFailed records a delivery failure with its cause.
func (r *Repository) MarkNotificationFailed(ctx context.Context, dealID int64, cause string) error {
	query := `
		UPDATE sales_notifications
		SET status = 'failed', last_error = $2
		WHERE deal_id = $1`

	if _, err := r.pool.Exec(ctx, query, dealID, cause); err != nil {
		return fmt.Errorf("mark notification failed for deal %d: %w", dealID, err)
	}
	return nil
}
