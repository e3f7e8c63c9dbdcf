// Package referral records sales attributed to referral partners. The
// referral code is the raw utm_source including its ref_ prefix, which is
// how the downstream partner payout report identifies the link owner.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficops_backend/internal/tracking"
)

// Conversion is one referral-attributed sale.
type Conversion struct {
	DealID       int64
	ReferralCode string
	DealName     string
	Price        int64
	ConvertedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository provides database operations for referral conversions.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new referral repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertConversion records a referral conversion keyed by deal id.
// Re-deliveries update the row only when the price changed.
func (r *Repository) UpsertConversion(ctx context.Context, conv Conversion) (tracking.Outcome, error) {
	query := `
		INSERT INTO referral_conversions (deal_id, referral_code, deal_name, price, converted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (deal_id) DO UPDATE SET
			referral_code = EXCLUDED.referral_code,
			deal_name = EXCLUDED.deal_name,
			price = EXCLUDED.price,
			converted_at = EXCLUDED.converted_at,
			updated_at = now()
		WHERE referral_conversions.price IS DISTINCT FROM EXCLUDED.price
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		conv.DealID, conv.ReferralCode, conv.DealName, conv.Price, conv.ConvertedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracking.OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("upsert referral conversion %d: %w", conv.DealID, err)
	}
	if inserted {
		return tracking.OutcomeInserted, nil
	}
	return tracking.OutcomeUpdated, nil
}
