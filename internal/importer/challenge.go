package importer

import (
	"context"
	"time"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/attribution"
	"trafficops_backend/internal/origin"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/sanitize"
)

// ChallengeWriter is the destination upsert for challenge imports.
type ChallengeWriter interface {
	UpsertChallenge3DSale(ctx context.Context, rec tracking.Challenge3DRecord) (tracking.Outcome, error)
}

// OriginResolver recovers original attribution for a deal.
type OriginResolver interface {
	Resolve(ctx context.Context, deal *amocrm.Deal) origin.Resolution
}

// Challenge3DImporter backfills the challenge pipelines into
// challenge3d_sales, resolving each sale's historical origin.
type Challenge3DImporter struct {
	crm       SalesLister
	sales     ChallengeWriter
	origins   OriginResolver
	pipelines config.PipelineConfig
	log       *logger.Logger
}

// NewChallenge3DImporter creates a challenge importer.
func NewChallenge3DImporter(crm SalesLister, sales ChallengeWriter, origins OriginResolver, pipelines config.PipelineConfig, log *logger.Logger) *Challenge3DImporter {
	return &Challenge3DImporter{crm: crm, sales: sales, origins: origins, pipelines: pipelines, log: log}
}

// Run fetches every successfully closed challenge deal in the window.
// Deals whose campaign places them in the express funnel are counted
// excluded, not imported: they already live in all_sales_tracking and
// would double-count challenge revenue. Payments under the prepaid
// threshold are flagged prepaid.
func (imp *Challenge3DImporter) Run(ctx context.Context, from, to time.Time) (*Stats, error) {
	stats := NewStats()

	deals, err := imp.crm.ListSales(ctx, amocrm.SalesFilter{
		PipelineIDs: imp.pipelines.GetChallenge3DPipelineIDs(),
		StatusID:    imp.pipelines.GetSuccessStatusID(),
		ClosedFrom:  from,
		ClosedTo:    to,
	})
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(deals)
	imp.log.Info("challenge3d import fetched deals", "count", len(deals))

	ids := imp.pipelines.GetUTMFieldIDs()
	threshold := imp.pipelines.GetPrepaidThreshold()

	for i := range deals {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		deal := &deals[i]

		utm := attribution.ExtractUTM(deal, ids)
		funnel := attribution.ResolveFunnel(utm, deal.PipelineID, imp.pipelines.GetChallenge3DPipelineIDs())
		if funnel.Type == attribution.FunnelExpress && funnel.AutoDetected {
			stats.Excluded++
			continue
		}

		res := imp.origins.Resolve(ctx, deal)
		team := attribution.ResolveTargetologist(res.UTM)
		prepaid := deal.Price < threshold
		closed := closedAt(deal)

		outcome, err := imp.sales.UpsertChallenge3DSale(ctx, tracking.Challenge3DRecord{
			DealID:         deal.ID,
			DealName:       sanitize.Text(deal.Name),
			Price:          deal.Price,
			Targetologist:  team,
			UTM:            utm,
			OriginalSource: res.UTM.Source,
			OriginalMedium: res.UTM.Medium,
			OriginCampaign: res.UTM.Campaign,
			OriginSource:   res.Source,
			RelatedDealID:  res.RelatedDealID,
			Prepaid:        prepaid,
			Phone:          res.Phone,
			Email:          res.Email,
			StatusID:       deal.StatusID,
			PipelineID:     deal.PipelineID,
			ClosedAt:       closed,
		})
		if err != nil {
			stats.CountError(deal.ID, err)
			continue
		}

		stats.CountOutcome(outcome)
		stats.ByTargetologist[teamLabel(team)]++
		stats.ByFunnel[funnel.Type]++
		stats.ByDate[closed.Format("2006-01-02")]++
		if prepaid {
			stats.Prepaid++
		} else {
			stats.FullPayment++
		}

		if (i+1)%dbPauseEvery == 0 {
			if err := pause(ctx, dbPause); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}
