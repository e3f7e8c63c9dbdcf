package attribution

import "strings"

// RefPrefix marks referral-partner traffic in utm_source.
const RefPrefix = "ref_"

// Route is the destination class of a processed sale.
type Route string

const (
	// RouteReferral: partner referral traffic, recorded as a referral conversion.
	RouteReferral Route = "referral"
	// RouteTraffic: paid traffic claimed by a targetologist team.
	RouteTraffic Route = "traffic"
	// RouteBoth: no source and no campaign; recorded on both sides so
	// neither report undercounts organic sales.
	RouteBoth Route = "both"
	// RouteUnknown: tagged traffic nobody claims; recorded for review.
	RouteUnknown Route = "unknown"
)

// Decision is the full routing outcome for one sale.
type Decision struct {
	Route         Route
	Targetologist string
	Referral      bool
}

// DecideRoute classifies a sale by its attribution. The checks are
// ordered: referral prefix beats team patterns, team patterns beat the
// residual-UTM case. Only source and campaign count as residual signal;
// a deal carrying nothing but secondary tags (medium, content, term)
// that no team claims still routes to both sides. Every input yields
// exactly one route.
func DecideRoute(utm UTMSet) Decision {
	if strings.HasPrefix(strings.ToLower(utm.Source), RefPrefix) {
		return Decision{Route: RouteReferral, Referral: true}
	}

	if team := ResolveTargetologist(utm); team != "" {
		return Decision{Route: RouteTraffic, Targetologist: team}
	}

	if utm.Source != "" || utm.Campaign != "" {
		return Decision{Route: RouteUnknown}
	}

	return Decision{Route: RouteBoth}
}
