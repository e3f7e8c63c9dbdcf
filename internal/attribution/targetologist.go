package attribution

import "strings"

// Team describes one traffic-buying team and the substrings that identify
// it across UTM fields. Teams are checked in declaration order; the first
// matching team wins, so more specific patterns must come earlier.
type Team struct {
	Name string

	// SourcePatterns match against utm_source only.
	SourcePatterns []string
	// MediumPatterns and CampaignPatterns are secondary signals used when
	// the source carries a generic value like "facebook".
	MediumPatterns   []string
	CampaignPatterns []string
}

// DefaultTeams is the production team roster. Order matters.
var DefaultTeams = []Team{
	{
		Name:           "Kenesary",
		SourcePatterns: []string{"kenesary", "kenji", "tripwire", "nutcab"},
	},
	{
		Name:           "Arystan",
		SourcePatterns: []string{"arystan", "fbarystan", "ar_"},
	},
	{
		Name:             "Muha",
		SourcePatterns:   []string{"muha", "facebook", "yourmarketolog", "on ai", "onai"},
		CampaignPatterns: []string{"запуск"},
	},
	{
		Name:           "Traf4",
		SourcePatterns: []string{"alex", "tf4", "traf4", "proftest", "pb_agency"},
		MediumPatterns: []string{"tf4", "traf4"},
	},
}

// ResolveTargetologist maps a UTM set to the responsible team name, or ""
// when no team claims the traffic. Matching is case-insensitive substring
// containment, so "kenjifb" and "kenesary_retarget" both land on Kenesary.
func ResolveTargetologist(utm UTMSet) string {
	return resolveTargetologist(utm, DefaultTeams)
}

func resolveTargetologist(utm UTMSet, teams []Team) string {
	source := strings.ToLower(utm.Source)
	medium := strings.ToLower(utm.Medium)
	campaign := strings.ToLower(utm.Campaign)

	for _, team := range teams {
		for _, p := range team.SourcePatterns {
			if source != "" && strings.Contains(source, p) {
				return team.Name
			}
		}
		for _, p := range team.MediumPatterns {
			if medium != "" && strings.Contains(medium, p) {
				return team.Name
			}
		}
		for _, p := range team.CampaignPatterns {
			if campaign != "" && strings.Contains(campaign, p) {
				return team.Name
			}
		}
	}
	return ""
}
