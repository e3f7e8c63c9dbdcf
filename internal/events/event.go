// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"trafficops_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// SaleRecorded is published when a webhook deal produced a new tracking
// row. Updates and skips do not publish; subscribers may assume the sale
// is being seen for the first time.
type SaleRecorded struct {
	BaseEvent
	DealID        int64     `json:"dealId"`
	DealName      string    `json:"dealName"`
	Price         int64     `json:"price"`
	Targetologist string    `json:"targetologist"`
	FunnelType    string    `json:"funnelType"`
	UTMSource     string    `json:"utmSource,omitempty"`
	UTMCampaign   string    `json:"utmCampaign,omitempty"`
	ClosedAt      time.Time `json:"closedAt"`
}

func (e SaleRecorded) EventName() string { return "tracking.sale.recorded" }

// WebhookProcessed is published after every webhook batch, regardless of
// outcome, for audit subscribers.
type WebhookProcessed struct {
	BaseEvent
	DealCount int    `json:"dealCount"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	SourceIP  string `json:"sourceIp,omitempty"`
}

func (e WebhookProcessed) EventName() string { return "tracking.webhook.processed" }
