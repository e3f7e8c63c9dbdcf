// Package webhook provides the CRM webhook bounded context: payload
// parsing, the per-deal processing pipeline, audit logging, and the HTTP
// surface. The CRM retries any non-200 response forever, so the handler
// reports failures inside a 200 body instead of through status codes.
package webhook

import (
	"encoding/json"
	"time"

	"trafficops_backend/internal/amocrm"
)

// Request is the inbound webhook body. The CRM sends deals either as a
// plain array or grouped by event kind; both shapes decode into one flat
// batch.
type Request struct {
	Leads LeadBatch `json:"leads"`
}

// LeadBatch is a flattened list of deals from a webhook delivery.
type LeadBatch []amocrm.Deal

// UnmarshalJSON accepts both payload shapes: a bare deal array, or the
// grouped `{add, update, status}` object older senders use. Grouped deals
// flatten in add, status, update order so creations are seen first.
func (b *LeadBatch) UnmarshalJSON(data []byte) error {
	var flat []amocrm.Deal
	if err := json.Unmarshal(data, &flat); err == nil {
		*b = flat
		return nil
	}

	var grouped struct {
		Add    []amocrm.Deal `json:"add"`
		Status []amocrm.Deal `json:"status"`
		Update []amocrm.Deal `json:"update"`
	}
	if err := json.Unmarshal(data, &grouped); err != nil {
		return err
	}

	merged := make([]amocrm.Deal, 0, len(grouped.Add)+len(grouped.Status)+len(grouped.Update))
	merged = append(merged, grouped.Add...)
	merged = append(merged, grouped.Status...)
	merged = append(merged, grouped.Update...)
	*b = merged
	return nil
}

// Response is the webhook reply. Success refers to the handler having
// run, not to every deal having processed cleanly; per-deal outcomes are
// in Results.
type Response struct {
	Success   bool        `json:"success"`
	Results   BatchResult `json:"results"`
	Timestamp time.Time   `json:"timestamp"`
}
