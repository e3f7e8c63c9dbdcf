package webhook

import (
	"context"
	"strconv"
	"time"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/attribution"
	"trafficops_backend/internal/events"
	"trafficops_backend/internal/referral"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/sanitize"
)

// SaleStore persists traffic-side sales and their notification state.
type SaleStore interface {
	UpsertSale(ctx context.Context, rec tracking.SaleRecord) (tracking.Outcome, error)
	CreateNotification(ctx context.Context, dealID int64, message string) (tracking.Outcome, error)
}

// ReferralStore persists referral-side conversions.
type ReferralStore interface {
	UpsertConversion(ctx context.Context, conv referral.Conversion) (tracking.Outcome, error)
}

// AuditLog records one entry per admissible deal.
type AuditLog interface {
	Append(ctx context.Context, entry LogEntry) error
}

// DealResult is the outcome for one deal in a delivery.
type DealResult struct {
	DealID  int64  `json:"dealId"`
	Route   string `json:"route,omitempty"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates one webhook delivery.
type BatchResult struct {
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Deals     []DealResult `json:"deals"`
}

// Service runs the webhook processing pipeline: stage filter, UTM
// extraction, routing, upserts, notification fan-out, audit logging.
type Service struct {
	sales     SaleStore
	referrals ReferralStore
	audit     AuditLog
	bus       events.Bus
	pipelines config.PipelineConfig
	log       *logger.Logger
}

// NewService creates the webhook service.
func NewService(sales SaleStore, referrals ReferralStore, audit AuditLog, bus events.Bus, pipelines config.PipelineConfig, log *logger.Logger) *Service {
	return &Service{
		sales:     sales,
		referrals: referrals,
		audit:     audit,
		bus:       bus,
		pipelines: pipelines,
		log:       log,
	}
}

// ProcessBatch handles one delivery. Deals run sequentially in delivery
// order; one deal failing never stops the rest. ProcessBatch itself never
// returns an error since the handler must answer 200 regardless.
func (s *Service) ProcessBatch(ctx context.Context, deals []amocrm.Deal, sourceIP string) BatchResult {
	result := BatchResult{Deals: make([]DealResult, 0, len(deals))}

	for i := range deals {
		dr := s.processDeal(ctx, &deals[i])
		result.Deals = append(result.Deals, dr)
		switch dr.Status {
		case "skipped":
			result.Skipped++
		case StatusError:
			result.Failed++
		default:
			result.Processed++
		}
	}

	s.bus.Publish(ctx, events.WebhookProcessed{
		BaseEvent: events.NewBaseEvent(),
		DealCount: len(deals),
		Processed: result.Processed,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		SourceIP:  sourceIP,
	})
	return result
}

func (s *Service) processDeal(ctx context.Context, deal *amocrm.Deal) DealResult {
	if !s.passesStageFilter(deal) {
		return DealResult{DealID: deal.ID, Status: "skipped"}
	}

	utm := attribution.ExtractUTM(deal, s.pipelines.GetUTMFieldIDs())
	decision := attribution.DecideRoute(utm)
	funnel := attribution.ResolveFunnel(utm, deal.PipelineID, s.pipelines.GetChallenge3DPipelineIDs())

	var referralErr, trafficErr error
	var trafficOutcome tracking.Outcome

	switch decision.Route {
	case attribution.RouteReferral:
		_, referralErr = s.recordReferral(ctx, deal, utm)
	case attribution.RouteTraffic:
		trafficOutcome, trafficErr = s.recordSale(ctx, deal, utm, decision, funnel)
	case attribution.RouteBoth:
		s.log.Warn("deal carries no attribution, recording to both destinations", "deal_id", deal.ID)
		// Referral before traffic, purely for deterministic logging.
		_, referralErr = s.recordReferral(ctx, deal, utm)
		trafficOutcome, trafficErr = s.recordSale(ctx, deal, utm, decision, funnel)
	case attribution.RouteUnknown:
		// Logged for manual review, nothing persisted.
	}

	status := processingStatus(decision.Route, referralErr, trafficErr)

	if trafficOutcome == tracking.OutcomeInserted {
		s.announceSale(ctx, deal, utm, decision, funnel)
	}

	entry := LogEntry{
		ReceivedAt:       time.Now().UTC(),
		DealID:           deal.ID,
		PipelineID:       deal.PipelineID,
		UTMSource:        utm.Source,
		UTMCampaign:      utm.Campaign,
		RoutingDecision:  string(decision.Route),
		ProcessingStatus: status,
		ErrorMessage:     firstError(referralErr, trafficErr),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		// Audit is diagnostic; a failed write never fails the deal.
		s.log.DatabaseError("append webhook log", err)
	}

	s.log.WebhookDecision(deal.ID, string(decision.Route), decision.Targetologist, status)

	dr := DealResult{
		DealID:  deal.ID,
		Route:   string(decision.Route),
		Status:  status,
		Outcome: string(trafficOutcome),
	}
	if msg := firstError(referralErr, trafficErr); msg != "" {
		dr.Error = msg
	}
	return dr
}

// passesStageFilter admits only successfully closed deals in the tracked
// pipelines. Everything else is a silent skip, not an error.
func (s *Service) passesStageFilter(deal *amocrm.Deal) bool {
	if deal.StatusID != s.pipelines.GetSuccessStatusID() {
		return false
	}
	if deal.PipelineID == s.pipelines.GetExpressPipelineID() {
		return true
	}
	for _, id := range s.pipelines.GetChallenge3DPipelineIDs() {
		if deal.PipelineID == id {
			return true
		}
	}
	return false
}

func (s *Service) recordSale(ctx context.Context, deal *amocrm.Deal, utm attribution.UTMSet, decision attribution.Decision, funnel attribution.Funnel) (tracking.Outcome, error) {
	rec := tracking.SaleRecord{
		DealID:          deal.ID,
		DealName:        sanitize.Text(deal.Name),
		Price:           deal.Price,
		Targetologist:   decision.Targetologist,
		FunnelType:      funnel.Type,
		AutoDetected:    funnel.AutoDetected,
		DetectionMethod: funnel.DetectionMethod,
		UTM:             utm,
		StatusID:        deal.StatusID,
		PipelineID:      deal.PipelineID,
		ClosedAt:        closedAt(deal),
	}
	outcome, err := s.sales.UpsertSale(ctx, rec)
	if err != nil {
		s.log.DatabaseError("upsert sale", err)
		return "", err
	}
	return outcome, nil
}

func (s *Service) recordReferral(ctx context.Context, deal *amocrm.Deal, utm attribution.UTMSet) (tracking.Outcome, error) {
	code := utm.Source
	if code == "" {
		// Unattributed deals reach here via the both route; a synthetic
		// code keeps the row identifiable on the payout side.
		code = "deal_" + strconv.FormatInt(deal.ID, 10)
	}
	conv := referral.Conversion{
		DealID:       deal.ID,
		ReferralCode: code,
		DealName:     sanitize.Text(deal.Name),
		Price:        deal.Price,
		ConvertedAt:  closedAt(deal),
	}
	outcome, err := s.referrals.UpsertConversion(ctx, conv)
	if err != nil {
		s.log.DatabaseError("upsert referral conversion", err)
		return "", err
	}
	return outcome, nil
}

// announceSale registers the pending notification and publishes the
// event. Only first-time inserts get here, which is what keeps
// redelivered deals from alerting twice.
func (s *Service) announceSale(ctx context.Context, deal *amocrm.Deal, utm attribution.UTMSet, decision attribution.Decision, funnel attribution.Funnel) {
	name := sanitize.Text(deal.Name)
	outcome, err := s.sales.CreateNotification(ctx, deal.ID, name)
	if err != nil {
		s.log.DatabaseError("create notification", err)
		return
	}
	if outcome != tracking.OutcomeInserted {
		return
	}

	s.bus.Publish(ctx, events.SaleRecorded{
		BaseEvent:     events.NewBaseEvent(),
		DealID:        deal.ID,
		DealName:      name,
		Price:         deal.Price,
		Targetologist: decision.Targetologist,
		FunnelType:    funnel.Type,
		UTMSource:     utm.Source,
		UTMCampaign:   utm.Campaign,
		ClosedAt:      closedAt(deal),
	})
}

func processingStatus(route attribution.Route, referralErr, trafficErr error) string {
	switch route {
	case attribution.RouteBoth:
		switch {
		case referralErr == nil && trafficErr == nil:
			return StatusSuccess
		case referralErr != nil && trafficErr != nil:
			return StatusError
		default:
			return StatusPartial
		}
	default:
		if referralErr != nil || trafficErr != nil {
			return StatusError
		}
		return StatusSuccess
	}
}

func firstError(errs ...error) string {
	for _, err := range errs {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}

func closedAt(deal *amocrm.Deal) time.Time {
	if deal.ClosedAt > 0 {
		return time.Unix(deal.ClosedAt, 0).UTC()
	}
	return time.Now().UTC()
}
