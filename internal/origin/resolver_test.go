package origin

import (
	"context"
	"errors"
	"testing"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
)

var testIDs = config.UTMFieldIDs{Source: 434731, Medium: 434727, Campaign: 434729}

type fakeFinder struct {
	deals []amocrm.Deal
	err   error
	calls int
}

func (f *fakeFinder) FindDealsByPhone(_ context.Context, _ string) ([]amocrm.Deal, error) {
	f.calls++
	return f.deals, f.err
}

func sourceField(value string) amocrm.CustomFieldValue {
	return amocrm.CustomFieldValue{FieldID: 434731, Values: []amocrm.FieldValue{{Value: value}}}
}

func dealWithContact(id int64, phone string, fields ...amocrm.CustomFieldValue) *amocrm.Deal {
	return &amocrm.Deal{
		ID:                 id,
		CustomFieldsValues: fields,
		Embedded: &amocrm.DealEmbedded{
			Contacts: []amocrm.Contact{{
				ID: 1,
				CustomFieldsValues: []amocrm.CustomFieldValue{
					{FieldCode: "PHONE", Values: []amocrm.FieldValue{{Value: phone}}},
				},
			}},
		},
	}
}

func newTestResolver(finder DealFinder) *Resolver {
	return NewResolver(finder, testIDs, logger.New("test"))
}

func TestResolveCurrentDealWins(t *testing.T) {
	finder := &fakeFinder{}
	r := newTestResolver(finder)

	res := r.Resolve(context.Background(), dealWithContact(10, "+77001234567", sourceField("kenjifb")))
	if res.Source != tracking.OriginCurrentDeal {
		t.Fatalf("expected current_deal origin, got %s", res.Source)
	}
	if res.UTM.Source != "kenjifb" {
		t.Fatalf("expected current source, got %q", res.UTM.Source)
	}
	if finder.calls != 0 {
		t.Fatalf("expected no history lookup when current deal is attributed")
	}
}

func TestResolveUnknownPlaceholderTriggersLookup(t *testing.T) {
	finder := &fakeFinder{deals: []amocrm.Deal{
		{ID: 5, CreatedAt: 100, CustomFieldsValues: []amocrm.CustomFieldValue{sourceField("traf4_main")}},
	}}
	r := newTestResolver(finder)

	mediumField := amocrm.CustomFieldValue{FieldID: 434727, Values: []amocrm.FieldValue{{Value: "cpc"}}}
	res := r.Resolve(context.Background(), dealWithContact(10, "+77001234567", sourceField("unknown"), mediumField))
	if finder.calls != 1 {
		t.Fatalf("expected history lookup for placeholder source")
	}
	if res.UTM.Source != "traf4_main" {
		t.Fatalf("expected origin source to replace the placeholder, got %q", res.UTM.Source)
	}
	if res.UTM.Medium != "cpc" {
		t.Fatalf("expected the deal's own medium to survive the merge, got %q", res.UTM.Medium)
	}
}

func TestResolvePicksEarliestAttributedDeal(t *testing.T) {
	finder := &fakeFinder{deals: []amocrm.Deal{
		{ID: 7, CreatedAt: 300, CustomFieldsValues: []amocrm.CustomFieldValue{sourceField("late_source")}},
		{ID: 5, CreatedAt: 100, CustomFieldsValues: []amocrm.CustomFieldValue{sourceField("first_source")}},
		{ID: 6, CreatedAt: 50}, // older but unattributed
	}}
	r := newTestResolver(finder)

	res := r.Resolve(context.Background(), dealWithContact(10, "+77001234567"))
	if res.UTM.Source != "first_source" {
		t.Fatalf("expected earliest attributed deal to win, got %q", res.UTM.Source)
	}
	if res.Source != tracking.OriginPhoneMatch {
		t.Fatalf("expected phone_match origin, got %s", res.Source)
	}
}

func TestResolveRelatedDeal(t *testing.T) {
	deal := dealWithContact(10, "+77001234567")
	deal.Embedded.Contacts[0].Embedded = &amocrm.ContactEmbedded{
		Leads: []amocrm.LeadRef{{ID: 5}},
	}
	finder := &fakeFinder{deals: []amocrm.Deal{
		{ID: 5, CreatedAt: 100, CustomFieldsValues: []amocrm.CustomFieldValue{sourceField("fbarystan")}},
	}}
	r := newTestResolver(finder)

	res := r.Resolve(context.Background(), deal)
	if res.Source != tracking.OriginRelatedDeal {
		t.Fatalf("expected related_deal origin, got %s", res.Source)
	}
	if res.RelatedDealID != 5 {
		t.Fatalf("expected origin deal id 5, got %d", res.RelatedDealID)
	}
}

func TestResolveDegradesOnLookupError(t *testing.T) {
	finder := &fakeFinder{err: errors.New("crm down")}
	r := newTestResolver(finder)

	res := r.Resolve(context.Background(), dealWithContact(10, "+77001234567"))
	if res.Source != tracking.OriginNone {
		t.Fatalf("expected none origin on lookup failure, got %s", res.Source)
	}
	if !res.UTM.IsEmpty() {
		t.Fatalf("expected empty attribution, got %+v", res.UTM)
	}
}

func TestResolveNoPhoneNoLookup(t *testing.T) {
	finder := &fakeFinder{}
	r := newTestResolver(finder)

	res := r.Resolve(context.Background(), &amocrm.Deal{ID: 10})
	if finder.calls != 0 {
		t.Fatalf("expected no lookup without a phone")
	}
	if res.Source != tracking.OriginNone {
		t.Fatalf("expected none origin, got %s", res.Source)
	}
}
