package webhook

import (
	"context"
	"errors"
	"testing"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/events"
	"trafficops_backend/internal/referral"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
)

const (
	testExpressPipeline   = int64(10350882)
	testChallengePipeline = int64(9777626)
	testSuccessStatus     = int64(142)
	testSourceFieldID     = int64(434731)
	testCampaignFieldID   = int64(434729)
)

type testPipelineConfig struct{}

func (testPipelineConfig) GetExpressPipelineID() int64        { return testExpressPipeline }
func (testPipelineConfig) GetChallenge3DPipelineIDs() []int64 { return []int64{testChallengePipeline, 9430994} }
func (testPipelineConfig) GetSuccessStatusID() int64          { return testSuccessStatus }
func (testPipelineConfig) GetUTMFieldIDs() config.UTMFieldIDs {
	return config.UTMFieldIDs{Source: testSourceFieldID, Campaign: testCampaignFieldID}
}
func (testPipelineConfig) GetPrepaidThreshold() int64 { return 10000 }

type fakeSaleStore struct {
	upsertOutcome tracking.Outcome
	upsertErr     error
	upserts       []tracking.SaleRecord
	notifications []int64
}

func (f *fakeSaleStore) UpsertSale(_ context.Context, rec tracking.SaleRecord) (tracking.Outcome, error) {
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.upserts = append(f.upserts, rec)
	return f.upsertOutcome, nil
}

func (f *fakeSaleStore) CreateNotification(_ context.Context, dealID int64, _ string) (tracking.Outcome, error) {
	f.notifications = append(f.notifications, dealID)
	return tracking.OutcomeInserted, nil
}

type fakeReferralStore struct {
	outcome     tracking.Outcome
	err         error
	conversions []referral.Conversion
}

func (f *fakeReferralStore) UpsertConversion(_ context.Context, conv referral.Conversion) (tracking.Outcome, error) {
	if f.err != nil {
		return "", f.err
	}
	f.conversions = append(f.conversions, conv)
	return f.outcome, nil
}

type fakeAudit struct {
	entries []LogEntry
	err     error
}

func (f *fakeAudit) Append(_ context.Context, entry LogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }
func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

type testEnv struct {
	service   *Service
	sales     *fakeSaleStore
	referrals *fakeReferralStore
	audit     *fakeAudit
	bus       *recordingBus
}

func newTestEnv() *testEnv {
	sales := &fakeSaleStore{upsertOutcome: tracking.OutcomeInserted}
	referrals := &fakeReferralStore{outcome: tracking.OutcomeInserted}
	audit := &fakeAudit{}
	bus := &recordingBus{}
	svc := NewService(sales, referrals, audit, bus, testPipelineConfig{}, logger.New("test"))
	return &testEnv{service: svc, sales: sales, referrals: referrals, audit: audit, bus: bus}
}

func sourceDeal(id int64, source, campaign string) amocrm.Deal {
	fields := []amocrm.CustomFieldValue{}
	if source != "" {
		fields = append(fields, amocrm.CustomFieldValue{
			FieldID: testSourceFieldID, Values: []amocrm.FieldValue{{Value: source}},
		})
	}
	if campaign != "" {
		fields = append(fields, amocrm.CustomFieldValue{
			FieldID: testCampaignFieldID, Values: []amocrm.FieldValue{{Value: campaign}},
		})
	}
	return amocrm.Deal{
		ID:                 id,
		Name:               "Deal",
		Price:              5000,
		StatusID:           testSuccessStatus,
		PipelineID:         testExpressPipeline,
		CustomFieldsValues: fields,
	}
}

func saleEvents(bus *recordingBus) []events.SaleRecorded {
	var out []events.SaleRecorded
	for _, e := range bus.published {
		if sr, ok := e.(events.SaleRecorded); ok {
			out = append(out, sr)
		}
	}
	return out
}

func TestProcessBatchTrafficEndToEnd(t *testing.T) {
	env := newTestEnv()
	deal := sourceDeal(555, "kenjifb", "express_promo")

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "10.0.0.1")

	if res.Processed != 1 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("unexpected batch counters: %+v", res)
	}
	if len(env.sales.upserts) != 1 {
		t.Fatalf("expected one sale upsert, got %d", len(env.sales.upserts))
	}
	rec := env.sales.upserts[0]
	if rec.Targetologist != "Kenesary" {
		t.Fatalf("expected Kenesary, got %q", rec.Targetologist)
	}
	if rec.FunnelType != "express" || !rec.AutoDetected {
		t.Fatalf("expected auto-detected express funnel, got %+v", rec)
	}
	if len(env.referrals.conversions) != 0 {
		t.Fatalf("expected no referral conversion for traffic route")
	}
	if len(env.sales.notifications) != 1 || env.sales.notifications[0] != 555 {
		t.Fatalf("expected one notification for deal 555, got %v", env.sales.notifications)
	}
	if got := saleEvents(env.bus); len(got) != 1 || got[0].DealID != 555 {
		t.Fatalf("expected one SaleRecorded event for deal 555")
	}
	if len(env.audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(env.audit.entries))
	}
	entry := env.audit.entries[0]
	if entry.DealID != 555 || entry.RoutingDecision != "traffic" || entry.ProcessingStatus != StatusSuccess {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestProcessBatchUnknownRouteIsLoggedNotStored(t *testing.T) {
	env := newTestEnv()
	deal := sourceDeal(600, "randomblog", "")

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("unknown route must count as processed: %+v", res)
	}
	if len(env.sales.upserts) != 0 || len(env.referrals.conversions) != 0 {
		t.Fatalf("expected no writes for unknown route")
	}
	if len(env.audit.entries) != 1 {
		t.Fatalf("expected audit entry for unknown route")
	}
	entry := env.audit.entries[0]
	if entry.RoutingDecision != "unknown" || entry.ProcessingStatus != StatusSuccess {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestProcessBatchStageFilterSkips(t *testing.T) {
	env := newTestEnv()
	wrongStatus := sourceDeal(1, "kenjifb", "")
	wrongStatus.StatusID = 999
	wrongPipeline := sourceDeal(2, "kenjifb", "")
	wrongPipeline.PipelineID = 7777

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{wrongStatus, wrongPipeline}, "")

	if res.Skipped != 2 || res.Processed != 0 || res.Failed != 0 {
		t.Fatalf("expected both deals skipped: %+v", res)
	}
	if len(env.audit.entries) != 0 {
		t.Fatalf("stage-filtered deals must not be audited")
	}
	if len(env.sales.upserts) != 0 {
		t.Fatalf("stage-filtered deals must not be upserted")
	}
}

func TestProcessBatchReferralRoute(t *testing.T) {
	env := newTestEnv()
	deal := sourceDeal(700, "ref_partner42", "")

	env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if len(env.referrals.conversions) != 1 {
		t.Fatalf("expected one referral conversion")
	}
	if env.referrals.conversions[0].ReferralCode != "ref_partner42" {
		t.Fatalf("expected raw source as referral code, got %q", env.referrals.conversions[0].ReferralCode)
	}
	if len(env.sales.upserts) != 0 {
		t.Fatalf("expected no traffic upsert for referral route")
	}
	if len(env.sales.notifications) != 0 {
		t.Fatalf("referral sales must not notify")
	}
}

func TestProcessBatchBothRoutePartialFailure(t *testing.T) {
	env := newTestEnv()
	env.referrals.err = errors.New("referral table unavailable")
	deal := sourceDeal(800, "", "")

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if len(env.sales.upserts) != 1 {
		t.Fatalf("traffic side must still be attempted after referral failure")
	}
	if env.audit.entries[0].ProcessingStatus != StatusPartial {
		t.Fatalf("expected partial status, got %s", env.audit.entries[0].ProcessingStatus)
	}
	if res.Processed != 1 {
		t.Fatalf("partial outcome still counts as processed: %+v", res)
	}
}

func TestProcessBatchBothRouteSyntheticReferralCode(t *testing.T) {
	env := newTestEnv()
	deal := sourceDeal(801, "", "")

	env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if len(env.referrals.conversions) != 1 {
		t.Fatalf("expected one referral conversion, got %d", len(env.referrals.conversions))
	}
	if got := env.referrals.conversions[0].ReferralCode; got != "deal_801" {
		t.Fatalf("expected synthetic referral code for unattributed deal, got %q", got)
	}
}

func TestProcessBatchNoNotificationOnUpdate(t *testing.T) {
	env := newTestEnv()
	env.sales.upsertOutcome = tracking.OutcomeUpdated
	deal := sourceDeal(900, "kenjifb", "")

	env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if len(env.sales.notifications) != 0 {
		t.Fatalf("updated sales must not notify")
	}
	if len(saleEvents(env.bus)) != 0 {
		t.Fatalf("updated sales must not publish SaleRecorded")
	}
}

func TestProcessBatchAuditFailureIsSwallowed(t *testing.T) {
	env := newTestEnv()
	env.audit.err = errors.New("audit table gone")
	deal := sourceDeal(901, "kenjifb", "")

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{deal}, "")

	if res.Failed != 0 || res.Processed != 1 {
		t.Fatalf("audit failure must not fail the deal: %+v", res)
	}
}

func TestProcessBatchUpsertErrorIsIsolated(t *testing.T) {
	env := newTestEnv()
	env.sales.upsertErr = errors.New("db down")
	bad := sourceDeal(1, "kenjifb", "")
	unknown := sourceDeal(2, "randomblog", "")

	res := env.service.ProcessBatch(context.Background(), []amocrm.Deal{bad, unknown}, "")

	if res.Failed != 1 || res.Processed != 1 {
		t.Fatalf("one failure must not stop the batch: %+v", res)
	}
	if env.audit.entries[0].ProcessingStatus != StatusError {
		t.Fatalf("expected error status for failed deal")
	}
	if env.audit.entries[0].ErrorMessage == "" {
		t.Fatalf("expected error message in audit entry")
	}
}
