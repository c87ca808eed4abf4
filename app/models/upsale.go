package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Upsale is a purchasable add-on service template.
type Upsale struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Slug             string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"slug"`
	Title            string    `gorm:"type:varchar(255);not null" json:"title"`
	ShortDescription string    `gorm:"type:varchar(80);not null;default:''" json:"short_description"`
	Description      string    `gorm:"type:varchar(400);not null;default:''" json:"description"`
	AdditionalInfo   string    `gorm:"type:text" json:"additional_info"`
	Icon             string    `gorm:"type:varchar(255);default:''" json:"icon"`
	IconThumbnail    string    `gorm:"type:varchar(255);default:''" json:"icon_thumbnail"`
	Image            string    `gorm:"type:varchar(255);default:''" json:"image"`
	MaxPerSession    int       `gorm:"not null;default:0" json:"max_per_session"`
	Price            int       `gorm:"not null;default:0" json:"price"`
	DiscountPrice    *int      `gorm:"default:null" json:"discount_price,omitempty"`
	DaysToBuy        *int      `gorm:"default:null" json:"days_to_buy,omitempty"`
	DaysToReturn     *int      `gorm:"default:null" json:"days_to_return,omitempty"`
	Required         string    `gorm:"type:varchar(100);default:''" json:"required"`
	Emails           string    `gorm:"type:varchar(255);default:''" json:"emails"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RequiredIDs parses the comma separated prerequisite upsale ids, skipping
// malformed entries.
func (u Upsale) RequiredIDs() []uint {
	var ids []uint
	for _, raw := range strings.Split(u.Required, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil || v == 0 {
			continue
		}
		ids = append(ids, uint(v))
	}
	return ids
}

// EmailList returns the trimmed, non-empty notification addresses.
func (u Upsale) EmailList() []string {
	var out []string
	for _, e := range strings.Split(u.Emails, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Upsale link payment kinds.
const (
	UpsaleLinkFree = "free"
	UpsaleLinkPaid = "paid"
)

// UpsaleLink binds an Upsale to one course session or module, optionally
// overriding its price.
type UpsaleLink struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UpsaleID       uint           `gorm:"not null;index:ux_upsale_links_target_upsale,unique,priority:3" json:"upsale_id"`
	TargetType     TargetKind     `gorm:"type:varchar(16);not null;index:ux_upsale_links_target_upsale,unique,priority:1" json:"target_type"`
	TargetID       uint           `gorm:"not null;index:ux_upsale_links_target_upsale,unique,priority:2" json:"target_id"`
	IsActive       bool           `gorm:"default:true;index" json:"is_active"`
	IsPaid         string         `gorm:"type:varchar(8);not null;default:'paid'" json:"is_paid"`
	IsDetachable   bool           `gorm:"default:false" json:"is_detachable"`
	Price          *int           `gorm:"default:null" json:"price,omitempty"`
	DiscountPrice  *int           `gorm:"default:null" json:"discount_price,omitempty"`
	DaysToBuy      *int           `gorm:"default:null" json:"days_to_buy,omitempty"`
	DaysToReturn   *int           `gorm:"default:null" json:"days_to_return,omitempty"`
	AdditionalInfo datatypes.JSON `gorm:"default:null" json:"additional_info,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Upsale Upsale `gorm:"foreignKey:UpsaleID" json:"upsale"`
}

// Target returns the context the link is attached to.
func (l UpsaleLink) Target() TargetRef {
	return TargetRef{Kind: l.TargetType, ID: l.TargetID}
}

// GetPrice is the list price: link override first, then the definition.
func (l UpsaleLink) GetPrice() int {
	if l.Price != nil {
		return *l.Price
	}
	return l.Upsale.Price
}

// GetPaymentPrice is the amount actually charged. The first configured value
// wins: link discount, link price, definition discount, definition price.
func (l UpsaleLink) GetPaymentPrice() int {
	switch {
	case l.DiscountPrice != nil:
		return *l.DiscountPrice
	case l.Price != nil:
		return *l.Price
	case l.Upsale.DiscountPrice != nil:
		return *l.Upsale.DiscountPrice
	default:
		return l.Upsale.Price
	}
}

// EffectiveDaysToBuy prefers the link override over the definition.
func (l UpsaleLink) EffectiveDaysToBuy() *int {
	if l.DaysToBuy != nil {
		return l.DaysToBuy
	}
	return l.Upsale.DaysToBuy
}

// PromoLedger tracks distribution of pre-generated promo codes from a file.
// AlreadySent is the cursor of the next unsent line.
type PromoLedger struct {
	File        string `json:"file"`
	AlreadySent int    `json:"already_sent"`
}

// Promo returns the promo ledger stored in additional_info, or nil when the
// link does not hand out promo codes.
func (l UpsaleLink) Promo() (*PromoLedger, error) {
	if len(l.AdditionalInfo) == 0 {
		return nil, nil
	}
	var info struct {
		Promo *PromoLedger `json:"promo"`
	}
	if err := json.Unmarshal(l.AdditionalInfo, &info); err != nil {
		return nil, err
	}
	if info.Promo == nil || strings.TrimSpace(info.Promo.File) == "" {
		return nil, nil
	}
	return info.Promo, nil
}

// SetPromoSent rewrites promo.already_sent while keeping every other key of
// additional_info intact.
func (l *UpsaleLink) SetPromoSent(sent int) error {
	info := map[string]any{}
	if len(l.AdditionalInfo) > 0 {
		if err := json.Unmarshal(l.AdditionalInfo, &info); err != nil {
			return err
		}
	}
	promo, _ := info["promo"].(map[string]any)
	if promo == nil {
		promo = map[string]any{}
	}
	promo["already_sent"] = sent
	info["promo"] = promo
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	l.AdditionalInfo = datatypes.JSON(raw)
	return nil
}
