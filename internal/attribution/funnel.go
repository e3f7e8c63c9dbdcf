package attribution

import "strings"

// Funnel type identifiers as stored in tracking tables.
const (
	FunnelExpress     = "express"
	FunnelChallenge3D = "challenge3d"
	FunnelIntensive1D = "intensive1d"
)

// How a funnel type was determined, recorded for audit.
const (
	DetectionDefault         = "default"
	DetectionPipelineDefault = "pipeline_default"
	DetectionCampaignKeyword = "utm_campaign_keyword"
)

// Funnel is the resolved product funnel of a sale together with how the
// resolution was made. AutoDetected is false only when the result fell
// back to the global default.
type Funnel struct {
	Type            string
	AutoDetected    bool
	DetectionMethod string
}

// funnelKeywords maps campaign substrings to funnel types. Checked in
// order; Russian spellings match what landing pages actually emit.
var funnelKeywords = []struct {
	funnelType string
	keywords   []string
}{
	{FunnelExpress, []string{"express", "экспресс"}},
	{FunnelChallenge3D, []string{"challenge", "трехдневник", "3дневник", "3d", "3х", "diary"}},
	{FunnelIntensive1D, []string{"intensive", "однодневник", "1d"}},
}

// ResolveFunnel determines the product funnel of a deal. The campaign
// keyword is the strongest signal; a deal sitting in a funnel-specific
// pipeline falls back to that pipeline's funnel; everything else is
// treated as the express funnel. A campaign that matched no keyword
// still counts as a pipeline-level detection; "default" is reserved for
// deals with no campaign at all.
func ResolveFunnel(utm UTMSet, pipelineID int64, challenge3DPipelines []int64) Funnel {
	campaign := strings.ToLower(utm.Campaign)
	if campaign != "" {
		for _, group := range funnelKeywords {
			for _, kw := range group.keywords {
				if strings.Contains(campaign, kw) {
					return Funnel{
						Type:            group.funnelType,
						AutoDetected:    true,
						DetectionMethod: DetectionCampaignKeyword,
					}
				}
			}
		}
	}

	for _, id := range challenge3DPipelines {
		if pipelineID == id {
			return Funnel{
				Type:            FunnelChallenge3D,
				AutoDetected:    true,
				DetectionMethod: DetectionPipelineDefault,
			}
		}
	}

	if campaign != "" {
		return Funnel{
			Type:            FunnelExpress,
			AutoDetected:    true,
			DetectionMethod: DetectionPipelineDefault,
		}
	}

	return Funnel{
		Type:            FunnelExpress,
		AutoDetected:    false,
		DetectionMethod: DetectionDefault,
	}
}
