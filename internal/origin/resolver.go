// Package origin recovers the original attribution of a sale whose deal
// arrives without usable UTM tags. Challenge-funnel deals are created by
// sales managers long after the ad click, so the attribution lives on an
// earlier deal of the same customer.
package origin

import (
	"context"

	"trafficops_backend/internal/amocrm"
	"trafficops_backend/internal/attribution"
	"trafficops_backend/internal/tracking"
	"trafficops_backend/platform/config"
	"trafficops_backend/platform/logger"
	"trafficops_backend/platform/phone"
)

// DealFinder looks up a customer's deal history. Implemented by the
// AmoCRM client.
type DealFinder interface {
	FindDealsByPhone(ctx context.Context, rawPhone string) ([]amocrm.Deal, error)
}

// Resolution is the outcome of an origin lookup. UTM may be partial or
// empty; Source says where it came from. Phone and Email are carried
// along because the caller persists them with the sale.
type Resolution struct {
	UTM           attribution.UTMSet
	Source        string
	RelatedDealID int64
	Phone         string
	Email         string
}

// Resolver walks the origin chain for a deal.
type Resolver struct {
	finder DealFinder
	ids    config.UTMFieldIDs
	log    *logger.Logger
}

// NewResolver creates an origin resolver.
func NewResolver(finder DealFinder, ids config.UTMFieldIDs, log *logger.Logger) *Resolver {
	return &Resolver{finder: finder, ids: ids, log: log}
}

// Resolve finds the best attribution for a deal. The chain is: the deal's
// own UTM when it carries a real source, then the earliest deal with a
// real source among the customer's history found by phone. Lookup
// failures degrade to whatever was already extracted; Resolve never
// returns an error because a sale without origin is still a sale.
func (r *Resolver) Resolve(ctx context.Context, deal *amocrm.Deal) Resolution {
	current := attribution.ExtractUTM(deal, r.ids)

	res := Resolution{
		UTM:    current,
		Source: tracking.OriginNone,
	}
	if contact := deal.PrimaryContact(); contact != nil {
		res.Phone = phone.NormalizeE164(contact.Phone())
		res.Email = contact.Email()
	}

	if current.HasCompleteSource() {
		res.Source = tracking.OriginCurrentDeal
		return res
	}

	if res.Phone == "" {
		return res
	}

	history, err := r.finder.FindDealsByPhone(ctx, res.Phone)
	if err != nil {
		r.log.Warn("origin lookup failed, keeping current attribution",
			"deal_id", deal.ID, "error", err)
		return res
	}

	origin := earliestWithSource(history, r.ids)
	if origin == nil {
		return res
	}

	originUTM := attribution.ExtractUTM(origin, r.ids)
	// Drop the "unknown" placeholder so the recovered source can land;
	// Merge alone would keep the non-empty placeholder string.
	if !current.HasCompleteSource() {
		current.Source = ""
	}
	res.UTM = current.Merge(originUTM)
	res.RelatedDealID = origin.ID
	if r.isRelated(deal, origin.ID) {
		res.Source = tracking.OriginRelatedDeal
	} else {
		res.Source = tracking.OriginPhoneMatch
	}
	return res
}

// earliestWithSource picks the oldest deal carrying a usable source.
func earliestWithSource(deals []amocrm.Deal, ids config.UTMFieldIDs) *amocrm.Deal {
	var best *amocrm.Deal
	for i := range deals {
		d := &deals[i]
		if !attribution.ExtractUTM(d, ids).HasCompleteSource() {
			continue
		}
		if best == nil || d.CreatedAt < best.CreatedAt {
			best = d
		}
	}
	return best
}

// isRelated reports whether originID is directly linked to the deal's
// own contact, as opposed to merely sharing a phone number.
func (r *Resolver) isRelated(deal *amocrm.Deal, originID int64) bool {
	contact := deal.PrimaryContact()
	if contact == nil || contact.Embedded == nil {
		return false
	}
	for _, ref := range contact.Embedded.Leads {
		if ref.ID == originID {
			return true
		}
	}
	return false
}
