// Package tracking persists attributed sales. Every write is an atomic
// upsert keyed by the CRM deal id so webhook retries and re-imports are
// idempotent.
package tracking

import (
	"time"

	"trafficops_backend/internal/attribution"
)

// Outcome reports what an upsert actually did.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
)

// SaleRecord is one attributed sale in all_sales_tracking.
type SaleRecord struct {
	DealID          int64
	DealName        string
	Price           int64
	Targetologist   string
	FunnelType      string
	AutoDetected    bool
	DetectionMethod string
	UTM             attribution.UTMSet
	StatusID        int64
	PipelineID      int64
	ClosedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Origin sources for challenge sales, recording where the historical
// attribution came from.
const (
	OriginCurrentDeal = "current_deal"
	OriginRelatedDeal = "related_deal"
	OriginPhoneMatch  = "phone_match"
	OriginNone        = "none"
)

// Challenge3DRecord is one challenge-funnel sale with its resolved
// historical origin.
type Challenge3DRecord struct {
	DealID         int64
	DealName       string
	Price          int64
	Targetologist  string
	UTM            attribution.UTMSet
	OriginalSource string
	OriginalMedium string
	OriginCampaign string
	OriginSource   string
	RelatedDealID  int64
	Prepaid        bool
	Phone          string
	Email          string
	StatusID       int64
	PipelineID     int64
	ClosedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Notification lifecycle statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// NotificationRecord tracks delivery of a sale notification.
type NotificationRecord struct {
	ID        int64
	DealID    int64
	Message   string
	Status    string
	SentAt    *time.Time
	LastError string
	CreatedAt time.Time
}
