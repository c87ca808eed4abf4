package payments

import (
	"github.com/ManuelReschke/OproPay/app/models"
)

// checkAvailability rejects upsales that cannot be bought with the offer.
func (c *Checkout) checkAvailability(userID uint, offer models.Purchasable, links []models.UpsaleLink) error {
	if len(links) == 0 {
		return nil
	}

	ref := offer.Ref()
	start := startingSession(offer)

	selected := make(map[uint]bool, len(links))
	for _, l := range links {
		selected[l.UpsaleID] = true
	}

	var owned map[uint]bool
	for _, l := range links {
		if !l.IsActive {
			return newValidationError("upsale_link_ids", "%s is no longer offered", l.Upsale.Title)
		}
		if l.Target() != ref {
			return newValidationError("upsale_link_ids", "%s is not offered with this product", l.Upsale.Title)
		}

		if days := l.EffectiveDaysToBuy(); days != nil && start != nil {
			if since := start.DaysSinceStart(c.now()); since >= 0 && since > *days {
				return newValidationError("upsale_link_ids", "%s can no longer be bought for this course", l.Upsale.Title)
			}
		}

		if limit := l.Upsale.MaxPerSession; limit > 0 {
			n, err := c.repos.Upsale.CountActiveEnrollments(l.ID)
			if err != nil {
				return err
			}
			if n >= int64(limit) {
				return newValidationError("upsale_link_ids", "%s is sold out", l.Upsale.Title)
			}
		}

		for _, req := range l.Upsale.RequiredIDs() {
			if selected[req] {
				continue
			}
			if owned == nil {
				var err error
				if owned, err = c.ownedUpsales(userID, ref); err != nil {
					return err
				}
			}
			if !owned[req] {
				return newValidationError("upsale_link_ids", "%s requires another service to be bought first", l.Upsale.Title)
			}
		}
	}
	return nil
}

func (c *Checkout) ownedUpsales(userID uint, ref models.TargetRef) (map[uint]bool, error) {
	owned := map[uint]bool{}
	if userID == 0 {
		return owned, nil
	}
	ids, err := c.repos.Upsale.OwnedUpsaleIDs(userID, ref)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		owned[id] = true
	}
	return owned, nil
}

// startingSession is the session whose start date bounds the buy window.
func startingSession(offer models.Purchasable) *models.CourseSession {
	switch o := offer.(type) {
	case models.SessionOffer:
		return &o.Session
	case models.ModuleOffer:
		if len(o.Sessions) > 0 {
			return &o.Sessions[0].Session
		}
	}
	return nil
}
