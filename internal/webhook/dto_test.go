package webhook

import (
	"encoding/json"
	"testing"
)

func TestLeadBatchFlatArray(t *testing.T) {
	payload := `{"leads":[{"id":1,"price":5000},{"id":2,"price":7000}]}`
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal flat payload: %v", err)
	}
	if len(req.Leads) != 2 || req.Leads[0].ID != 1 || req.Leads[1].Price != 7000 {
		t.Fatalf("unexpected batch: %+v", req.Leads)
	}
}

func TestLeadBatchGroupedObject(t *testing.T) {
	payload := `{"leads":{"add":[{"id":1}],"status":[{"id":2}],"update":[{"id":3}]}}`
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal grouped payload: %v", err)
	}
	if len(req.Leads) != 3 {
		t.Fatalf("expected 3 deals, got %d", len(req.Leads))
	}
	// add, status, update order
	if req.Leads[0].ID != 1 || req.Leads[1].ID != 2 || req.Leads[2].ID != 3 {
		t.Fatalf("unexpected flatten order: %+v", req.Leads)
	}
}

func TestLeadBatchEmptyPayload(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{}`), &req); err != nil {
		t.Fatalf("unmarshal empty payload: %v", err)
	}
	if len(req.Leads) != 0 {
		t.Fatalf("expected empty batch")
	}
}
