package attribution

import "testing"

func TestResolveTargetologistSourcePatterns(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"kenesary_retarget", "Kenesary"},
		{"kenjifb", "Kenesary"},
		{"tripwire_jan", "Kenesary"},
		{"FBArystan", "Arystan"},
		{"ar_lookalike", "Arystan"},
		{"facebook", "Muha"},
		{"yourmarketolog", "Muha"},
		{"onai_b2", "Muha"},
		{"traf4_main", "Traf4"},
		{"pb_agency", "Traf4"},
		{"proftest2", "Traf4"},
		{"tiktok_organic", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ResolveTargetologist(UTMSet{Source: tc.source}); got != tc.want {
			t.Fatalf("source %q: expected %q, got %q", tc.source, tc.want, got)
		}
	}
}

func TestResolveTargetologistOrderPrecedence(t *testing.T) {
	// "kenesary" contains "ar_"? No, but "fbarystan" contains "arystan";
	// what matters is declaration order when several teams could claim
	// the same value. A source matching Kenesary and a Muha campaign
	// keyword resolves to Kenesary because teams are checked in order.
	got := ResolveTargetologist(UTMSet{Source: "kenji", Campaign: "запуск"})
	if got != "Kenesary" {
		t.Fatalf("expected earlier team to win, got %q", got)
	}
}

func TestResolveTargetologistSecondarySignals(t *testing.T) {
	if got := ResolveTargetologist(UTMSet{Campaign: "запуск_март"}); got != "Muha" {
		t.Fatalf("expected Muha from campaign keyword, got %q", got)
	}
	if got := ResolveTargetologist(UTMSet{Medium: "tf4"}); got != "Traf4" {
		t.Fatalf("expected Traf4 from medium, got %q", got)
	}
}

func TestResolveTargetologistIgnoresEmptyFields(t *testing.T) {
	// Empty fields must not match patterns via substring on "".
	if got := ResolveTargetologist(UTMSet{}); got != "" {
		t.Fatalf("expected no match on empty set, got %q", got)
	}
}
