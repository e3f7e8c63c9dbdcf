package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/attribution"
	"trafficops_backend/internal/origin"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
)

type importPipelineConfig struct{}

func (importPipelineConfig) GetExpressPipelineID() int64        { return 10350882 }
func (importPipelineConfig) GetChallenge3DPipelineIDs() []int64 { return []int64{9777626, 9430994} }
func (importPipelineConfig) GetSuccessStatusID() int64          { return 142 }
func (importPipelineConfig) GetUTMFieldIDs() config.UTMFieldIDs {
	return config.UTMFieldIDs{Source: 434731, Campaign: 434729}
}
func (importPipelineConfig) GetPrepaidThreshold() int64 { return 10000 }

type fakeLister struct {
	deals  []amocrm.Deal
	err    error
	filter amocrm.SalesFilter
}

func (f *fakeLister) ListSales(_ context.Context, filter amocrm.SalesFilter) ([]amocrm.Deal, error) {
	f.filter = filter
	return f.deals, f.err
}

type fakeSaleWriter struct {
	outcome tracking.Outcome
	failFor map[int64]error
	records []tracking.SaleRecord
}

func (f *fakeSaleWriter) UpsertSale(_ context.Context, rec tracking.SaleRecord) (tracking.Outcome, error) {
	if err := f.failFor[rec.DealID]; err != nil {
		return "", err
	}
	f.records = append(f.records, rec)
	return f.outcome, nil
}

type fakeChallengeWriter struct {
	outcome tracking.Outcome
	records []tracking.Challenge3DRecord
}

func (f *fakeChallengeWriter) UpsertChallenge3DSale(_ context.Context, rec tracking.Challenge3DRecord) (tracking.Outcome, error) {
	f.records = append(f.records, rec)
	return f.outcome, nil
}

type fakeOrigins struct {
	resolutions map[int64]origin.Resolution
}

func (f *fakeOrigins) Resolve(_ context.Context, deal *amocrm.Deal) origin.Resolution {
	if res, ok := f.resolutions[deal.ID]; ok {
		return res
	}
	return origin.Resolution{Source: tracking.OriginNone}
}

func originUTM(source, medium, campaign string) attribution.UTMSet {
	return attribution.UTMSet{Source: source, Medium: medium, Campaign: campaign}
}

func importDeal(id int64, price int64, source, campaign string, pipelineID int64) amocrm.Deal {
	var fields []amocrm.CustomFieldValue
	if source != "" {
		fields = append(fields, amocrm.CustomFieldValue{FieldID: 434731, Values: []amocrm.FieldValue{{Value: source}}})
	}
	if campaign != "" {
		fields = append(fields, amocrm.CustomFieldValue{FieldID: 434729, Values: []amocrm.FieldValue{{Value: campaign}}})
	}
	return amocrm.Deal{
		ID: id, Name: "Deal", Price: price,
		StatusID: 142, PipelineID: pipelineID,
		ClosedAt:           time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC).Unix(),
		CustomFieldsValues: fields,
	}
}

func TestExpressImportRun(t *testing.T) {
	lister := &fakeLister{deals: []amocrm.Deal{
		importDeal(1, 5000, "kenjifb", "express_a", 10350882),
		importDeal(2, 7000, "", "", 10350882),
		importDeal(3, 9000, "traf4_x", "", 10350882),
	}}
	writer := &fakeSaleWriter{outcome: tracking.OutcomeInserted, failFor: map[int64]error{
		2: errors.New("write refused"),
	}}
	imp := NewExpressImporter(lister, writer, importPipelineConfig{}, logger.New("test"))

	stats, err := imp.Run(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Fetched != 3 || stats.Inserted != 2 || len(stats.Errors) != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByTargetologist["Kenesary"] != 1 || stats.ByTargetologist["Traf4"] != 1 {
		t.Fatalf("unexpected targetologist breakdown: %v", stats.ByTargetologist)
	}
	if stats.ByDate["2025-03-10"] != 2 {
		t.Fatalf("unexpected date breakdown: %v", stats.ByDate)
	}
	if lister.filter.StatusID != 142 || lister.filter.PipelineIDs[0] != 10350882 {
		t.Fatalf("unexpected CRM filter: %+v", lister.filter)
	}
}

func TestExpressImportFetchErrorAborts(t *testing.T) {
	lister := &fakeLister{err: amocrm.ErrUnauthorized}
	imp := NewExpressImporter(lister, &fakeSaleWriter{}, importPipelineConfig{}, logger.New("test"))

	_, err := imp.Run(context.Background(), time.Time{}, time.Time{})
	if !errors.Is(err, amocrm.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestChallengeImportExcludesExpressFunnel(t *testing.T) {
	lister := &fakeLister{deals: []amocrm.Deal{
		importDeal(1, 5000, "kenjifb", "express_promo", 9777626),
		importDeal(2, 25000, "kenjifb", "challenge_5", 9777626),
	}}
	writer := &fakeChallengeWriter{outcome: tracking.OutcomeInserted}
	imp := NewChallenge3DImporter(lister, writer, &fakeOrigins{}, importPipelineConfig{}, logger.New("test"))

	stats, err := imp.Run(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Excluded != 1 {
		t.Fatalf("expected one excluded deal, got %d", stats.Excluded)
	}
	if len(writer.records) != 1 || writer.records[0].DealID != 2 {
		t.Fatalf("expected only the challenge deal imported: %+v", writer.records)
	}
}

func TestChallengeImportPrepaidSplit(t *testing.T) {
	lister := &fakeLister{deals: []amocrm.Deal{
		importDeal(1, 5000, "", "challenge_a", 9777626),  // under threshold
		importDeal(2, 25000, "", "challenge_b", 9777626), // full payment
	}}
	writer := &fakeChallengeWriter{outcome: tracking.OutcomeInserted}
	imp := NewChallenge3DImporter(lister, writer, &fakeOrigins{}, importPipelineConfig{}, logger.New("test"))

	stats, err := imp.Run(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Prepaid != 1 || stats.FullPayment != 1 {
		t.Fatalf("unexpected payment split: prepaid=%d full=%d", stats.Prepaid, stats.FullPayment)
	}
	if !writer.records[0].Prepaid || writer.records[1].Prepaid {
		t.Fatalf("prepaid flags wrong: %+v", writer.records)
	}
}

func TestChallengeImportCarriesOrigin(t *testing.T) {
	lister := &fakeLister{deals: []amocrm.Deal{
		importDeal(9, 25000, "", "challenge_x", 9430994),
	}}
	writer := &fakeChallengeWriter{outcome: tracking.OutcomeInserted}
	origins := &fakeOrigins{resolutions: map[int64]origin.Resolution{
		9: {
			UTM:    originUTM("fbarystan", "cpc", "quiz_jan"),
			Source: tracking.OriginPhoneMatch,
			Phone:  "+77001234567",
		},
	}}
	imp := NewChallenge3DImporter(lister, writer, origins, importPipelineConfig{}, logger.New("test"))

	_, err := imp.Run(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := writer.records[0]
	if rec.OriginalSource != "fbarystan" || rec.OriginSource != tracking.OriginPhoneMatch {
		t.Fatalf("origin not carried: %+v", rec)
	}
	if rec.Targetologist != "Arystan" {
		t.Fatalf("expected team resolved from origin attribution, got %q", rec.Targetologist)
	}
}

func TestStatsSummaryOutput(t *testing.T) {
	stats := NewStats()
	stats.Fetched = 5
	stats.Inserted = 3
	stats.Skipped = 1
	stats.Excluded = 1
	stats.ByTargetologist["Kenesary"] = 2
	stats.ByFunnel["express"] = 3
	stats.Prepaid = 1
	stats.FullPayment = 2
	stats.ByDate["2025-03-10"] = 3
	stats.CountError(42, errors.New("boom"))

	var sb strings.Builder
	stats.WriteSummary(&sb)
	out := sb.String()

	for _, want := range []string{"Fetched:  5", "Inserted: 3", "Excluded: 1", "Kenesary", "express", "prepaid", "2025-03-10", "deal 42: boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
