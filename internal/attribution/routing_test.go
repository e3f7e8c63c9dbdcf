package attribution

import "testing"

func TestDecideRouteReferralBeatsTeamMatch(t *testing.T) {
	// A referral source that also contains a team substring must still
	// route to the referral side.
	d := DecideRoute(UTMSet{Source: "ref_kenesary_partner"})
	if d.Route != RouteReferral {
		t.Fatalf("expected referral route, got %s", d.Route)
	}
	if !d.Referral {
		t.Fatalf("expected referral flag to be set")
	}
	if d.Targetologist != "" {
		t.Fatalf("expected no targetologist on referral route, got %q", d.Targetologist)
	}
}

func TestDecideRouteTraffic(t *testing.T) {
	d := DecideRoute(UTMSet{Source: "kenjifb", Campaign: "express_feb"})
	if d.Route != RouteTraffic {
		t.Fatalf("expected traffic route, got %s", d.Route)
	}
	if d.Targetologist != "Kenesary" {
		t.Fatalf("expected Kenesary, got %q", d.Targetologist)
	}
}

func TestDecideRouteUnknownResidualUTM(t *testing.T) {
	d := DecideRoute(UTMSet{Source: "newsletter_march"})
	if d.Route != RouteUnknown {
		t.Fatalf("expected unknown route for unclaimed source, got %s", d.Route)
	}
}

func TestDecideRouteBothOnSecondaryTagsOnly(t *testing.T) {
	// Medium/content/term without source or campaign carry no routing
	// signal; the sale must still reach both destinations.
	d := DecideRoute(UTMSet{Medium: "cpc", Content: "ad_17"})
	if d.Route != RouteBoth {
		t.Fatalf("expected both route for secondary-only tags, got %s", d.Route)
	}
}

func TestDecideRouteBothOnEmptySet(t *testing.T) {
	d := DecideRoute(UTMSet{})
	if d.Route != RouteBoth {
		t.Fatalf("expected both route for empty attribution, got %s", d.Route)
	}
}

func TestDecideRouteMediumOnlySignal(t *testing.T) {
	// Source is empty but medium carries a team pattern.
	d := DecideRoute(UTMSet{Medium: "tf4_stories"})
	if d.Route != RouteTraffic {
		t.Fatalf("expected traffic route, got %s", d.Route)
	}
	if d.Targetologist != "Traf4" {
		t.Fatalf("expected Traf4, got %q", d.Targetologist)
	}
}

func TestDecideRouteIsDeterministic(t *testing.T) {
	inputs := []UTMSet{
		{},
		{Source: "ref_abc"},
		{Source: "facebook"},
		{Source: "tiktok_organic"},
		{Campaign: "запуск_март"},
	}
	for _, in := range inputs {
		first := DecideRoute(in)
		for j := 0; j < 10; j++ {
			if got := DecideRoute(in); got != first {
				t.Fatalf("route for %+v changed between calls: %+v vs %+v", in, first, got)
			}
		}
	}
}
