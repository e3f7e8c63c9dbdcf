package importer

import (
	"context"
	"time"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/attribution"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/sanitize"
)

const (
	dbPauseEvery = 50
	dbPause      = time.Second
)

// SalesLister fetches closed deals from the CRM. Implemented by the
// AmoCRM client.
type SalesLister interface {
	ListSales(ctx context.Context, filter amocrm.SalesFilter) ([]amocrm.Deal, error)
}

// SaleWriter is the destination upsert for express imports.
type SaleWriter interface {
	UpsertSale(ctx context.Context, rec tracking.SaleRecord) (tracking.Outcome, error)
}

// ExpressImporter backfills the express pipeline into all_sales_tracking.
type ExpressImporter struct {
	crm       SalesLister
	sales     SaleWriter
	pipelines config.PipelineConfig
	log       *logger.Logger
}

// NewExpressImporter creates an express importer.
func NewExpressImporter(crm SalesLister, sales SaleWriter, pipelines config.PipelineConfig, log *logger.Logger) *ExpressImporter {
	return &ExpressImporter{crm: crm, sales: sales, pipelines: pipelines, log: log}
}

// Run fetches every successfully closed express deal in the window and
// upserts it. A per-record failure lands in the stats error list and the
// run continues; only a fetch failure or cancellation aborts.
func (imp *ExpressImporter) Run(ctx context.Context, from, to time.Time) (*Stats, error) {
	stats := NewStats()

	deals, err := imp.crm.ListSales(ctx, amocrm.SalesFilter{
		PipelineIDs: []int64{imp.pipelines.GetExpressPipelineID()},
		StatusID:    imp.pipelines.GetSuccessStatusID(),
		ClosedFrom:  from,
		ClosedTo:    to,
	})
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(deals)
	imp.log.Info("express import fetched deals", "count", len(deals))

	ids := imp.pipelines.GetUTMFieldIDs()
	for i := range deals {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		deal := &deals[i]

		utm := attribution.ExtractUTM(deal, ids)
		team := attribution.ResolveTargetologist(utm)
		funnel := attribution.ResolveFunnel(utm, deal.PipelineID, imp.pipelines.GetChallenge3DPipelineIDs())
		closed := closedAt(deal)

		outcome, err := imp.sales.UpsertSale(ctx, tracking.SaleRecord{
			DealID:          deal.ID,
			DealName:        sanitize.Text(deal.Name),
			Price:           deal.Price,
			Targetologist:   team,
			FunnelType:      funnel.Type,
			AutoDetected:    funnel.AutoDetected,
			DetectionMethod: funnel.DetectionMethod,
			UTM:             utm,
			StatusID:        deal.StatusID,
			PipelineID:      deal.PipelineID,
			ClosedAt:        closed,
		})
		if err != nil {
			stats.CountError(deal.ID, err)
			continue
		}

		stats.CountOutcome(outcome)
		stats.ByTargetologist[teamLabel(team)]++
		stats.ByFunnel[funnel.Type]++
		stats.ByDate[closed.Format("2006-01-02")]++

		if (i+1)%dbPauseEvery == 0 {
			if err := pause(ctx, dbPause); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

func teamLabel(team string) string {
	if team == "" {
		return "Unknown"
	}
	return team
}

func closedAt(deal *amocrm.Deal) time.Time {
	if deal.ClosedAt > 0 {
		return time.Unix(deal.ClosedAt, 0).UTC()
	}
	return time.Unix(deal.CreatedAt, 0).UTC()
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
