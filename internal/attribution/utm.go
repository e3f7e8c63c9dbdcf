// Package attribution contains the pure decision core of the pipeline:
// UTM extraction from heterogeneous deal payloads, targetologist and
// funnel-type resolution, and the webhook routing decision. Nothing in
// this package performs I/O or returns errors; missing signal always
// degrades to empty values or defaults.
package attribution

import (
	"strings"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/platform/config"
)

// UTMSet is the marketing attribution of a deal at a single point in time.
// Empty string means "not available"; an entirely empty set is valid and
// means the sale carries no attribution.
type UTMSet struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Referrer string `json:"utm_referrer,omitempty"`
	ClickID  string `json:"fbclid,omitempty"`
}

// IsEmpty reports whether no field carries a value.
func (u UTMSet) IsEmpty() bool {
	return u == UTMSet{}
}

// HasCompleteSource reports whether the set carries a usable source.
// "unknown" placeholders written by earlier tooling do not count.
func (u UTMSet) HasCompleteSource() bool {
	return u.Source != "" && u.Source != "unknown"
}

// Merge fills empty fields of u from other, never overwriting.
func (u UTMSet) Merge(other UTMSet) UTMSet {
	if u.Source == "" {
		u.Source = other.Source
	}
	if u.Medium == "" {
		u.Medium = other.Medium
	}
	if u.Campaign == "" {
		u.Campaign = other.Campaign
	}
	if u.Content == "" {
		u.Content = other.Content
	}
	if u.Term == "" {
		u.Term = other.Term
	}
	if u.Referrer == "" {
		u.Referrer = other.Referrer
	}
	if u.ClickID == "" {
		u.ClickID = other.ClickID
	}
	return u
}

// extractorStrategy produces a partial UTMSet from one payload shape.
// Strategies are composed left to right with first-non-empty-wins merge.
type extractorStrategy func(deal *amocrm.Deal, ids config.UTMFieldIDs) UTMSet

var strategies = []extractorStrategy{
	extractByFieldID,
	extractByFieldName,
	extractLegacyFields,
	extractRefTag,
	extractDirectFields,
}

// ExtractUTM pulls marketing tags out of a deal, trying each known payload
// shape in priority order: numeric field-ID match, fuzzy field-name match
// (English and localized labels), the legacy custom-field shape, a "ref_"
// tag fallback for the source, and finally direct top-level fields.
// Unknown fields are ignored; a deal without any UTM yields an empty set.
func ExtractUTM(deal *amocrm.Deal, ids config.UTMFieldIDs) UTMSet {
	var utm UTMSet
	for _, strategy := range strategies {
		utm = utm.Merge(strategy(deal, ids))
	}
	return utm
}

func extractByFieldID(deal *amocrm.Deal, ids config.UTMFieldIDs) UTMSet {
	return UTMSet{
		Source:   deal.FirstValue(ids.Source),
		Medium:   deal.FirstValue(ids.Medium),
		Campaign: deal.FirstValue(ids.Campaign),
		Content:  deal.FirstValue(ids.Content),
		Term:     deal.FirstValue(ids.Term),
		Referrer: deal.FirstValue(ids.Referrer),
		ClickID:  deal.FirstValue(ids.ClickID),
	}
}

// Field label patterns (English + Russian CRM labels)
var (
	sourcePatterns   = []string{"utm_source", "источник"}
	mediumPatterns   = []string{"utm_medium", "канал"}
	campaignPatterns = []string{"utm_campaign", "кампания"}
	contentPatterns  = []string{"utm_content", "контент"}
	termPatterns     = []string{"utm_term", "ключ"}
	referrerPatterns = []string{"utm_referrer", "referrer"}
	clickIDPatterns  = []string{"fbclid", "click id", "click_id"}
)

func extractByFieldName(deal *amocrm.Deal, _ config.UTMFieldIDs) UTMSet {
	var utm UTMSet
	for _, field := range deal.CustomFieldsValues {
		if len(field.Values) == 0 || field.Values[0].Value == "" {
			continue
		}
		label := strings.ToLower(field.FieldName)
		if label == "" {
			label = strings.ToLower(field.FieldCode)
		}
		value := field.Values[0].Value

		switch {
		case utm.Source == "" && matchesAny(label, sourcePatterns):
			utm.Source = value
		case utm.Medium == "" && matchesAny(label, mediumPatterns):
			utm.Medium = value
		case utm.Campaign == "" && matchesAny(label, campaignPatterns):
			utm.Campaign = value
		case utm.Content == "" && matchesAny(label, contentPatterns):
			utm.Content = value
		case utm.Term == "" && matchesAny(label, termPatterns):
			utm.Term = value
		case utm.Referrer == "" && matchesAny(label, referrerPatterns):
			utm.Referrer = value
		case utm.ClickID == "" && matchesAny(label, clickIDPatterns):
			utm.ClickID = value
		}
	}
	return utm
}

func extractLegacyFields(deal *amocrm.Deal, _ config.UTMFieldIDs) UTMSet {
	var utm UTMSet
	for _, field := range deal.CustomFields {
		label := strings.ToLower(field.Name)
		if label == "" {
			label = strings.ToLower(field.Code)
		}
		value := field.Value
		if value == "" && len(field.Values) > 0 {
			value = field.Values[0].Value
		}
		if value == "" {
			continue
		}

		switch {
		case utm.Source == "" && matchesAny(label, sourcePatterns):
			utm.Source = value
		case utm.Medium == "" && matchesAny(label, mediumPatterns):
			utm.Medium = value
		case utm.Campaign == "" && matchesAny(label, campaignPatterns):
			utm.Campaign = value
		case utm.Content == "" && matchesAny(label, contentPatterns):
			utm.Content = value
		case utm.Term == "" && matchesAny(label, termPatterns):
			utm.Term = value
		}
	}
	return utm
}

// extractRefTag recovers the source from a referral-link tag. Referral
// links cannot write custom fields, so the tag is the only trace they leave.
func extractRefTag(deal *amocrm.Deal, _ config.UTMFieldIDs) UTMSet {
	for _, tag := range deal.Tags {
		if strings.HasPrefix(tag.Name, RefPrefix) {
			return UTMSet{Source: tag.Name}
		}
	}
	return UTMSet{}
}

func extractDirectFields(deal *amocrm.Deal, _ config.UTMFieldIDs) UTMSet {
	return UTMSet{
		Source:   deal.UTMSource,
		Medium:   deal.UTMMedium,
		Campaign: deal.UTMCampaign,
		Content:  deal.UTMContent,
		Term:     deal.UTMTerm,
	}
}

func matchesAny(label string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(label, p) {
			return true
		}
	}
	return false
}
