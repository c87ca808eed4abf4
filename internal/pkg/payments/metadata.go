package payments

import (
	"encoding/json"

	"github.com/ManuelReschke/OproPay/app/models"
)

// Shape is the kind of order a payment's metadata describes.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeSession
	ShapeModule
)

func (s Shape) String() string {
	switch s {
	case ShapeSession:
		return "session"
	case ShapeModule:
		return "module"
	}
	return "unknown"
}

// SessionMode identifies the bought session enrollment mode.
type SessionMode struct {
	ID   uint   `json:"id"`
	Mode string `json:"mode"`
}

// ModuleMode identifies the bought module enrollment mode.
type ModuleMode struct {
	ID               uint   `json:"id"`
	EnrollmentTypeID uint   `json:"enrollment_type_id"`
	Mode             string `json:"mode"`
}

// UserSnapshot is the purchaser identity frozen into an order.
type UserSnapshot struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Snapshot captures the identity fields of a user.
func Snapshot(u models.User) UserSnapshot {
	return UserSnapshot{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName}
}

// AnalyticsHit is one key-value parameter set of the analytics batch.
type AnalyticsHit map[string]string

// Metadata is everything confirmation needs to know about an order.
type Metadata struct {
	NewMode         *SessionMode   `json:"new_mode,omitempty"`
	EdModule        *ModuleMode    `json:"edmodule,omitempty"`
	User            UserSnapshot   `json:"user"`
	UpsaleLinks     []uint         `json:"upsale_links"`
	OnlyFirstCourse bool           `json:"only_first_course,omitempty"`
	FirstSessionID  uint           `json:"first_session_id,omitempty"`
	GiftReceiver    *UserSnapshot  `json:"gift_receiver,omitempty"`
	PromoCode       string         `json:"promocode,omitempty"`
	Analytics       []AnalyticsHit `json:"ga,omitempty"`
}

// Beneficiary is the user entitlements are granted to.
func (m Metadata) Beneficiary() UserSnapshot {
	if m.GiftReceiver != nil && m.GiftReceiver.ID != 0 {
		return *m.GiftReceiver
	}
	return m.User
}

// IsGift reports whether the order was bought for someone else.
func (m Metadata) IsGift() bool {
	return m.GiftReceiver != nil && m.GiftReceiver.ID != 0
}

// ParseMetadata decodes order metadata and classifies it. Metadata that does
// not carry a user, the upsale list and exactly one product reference is
// ShapeUnknown; such orders belong to other payment flows.
func ParseMetadata(raw []byte) (*Metadata, Shape) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, ShapeUnknown
	}
	if !present(keys, "user") || !present(keys, "upsale_links") {
		return nil, ShapeUnknown
	}
	hasSession, hasModule := present(keys, "new_mode"), present(keys, "edmodule")
	if hasSession == hasModule {
		return nil, ShapeUnknown
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ShapeUnknown
	}
	if m.User.ID == 0 {
		return nil, ShapeUnknown
	}
	if hasSession && m.NewMode != nil && m.NewMode.ID != 0 {
		return &m, ShapeSession
	}
	if hasModule && m.EdModule != nil && m.EdModule.EnrollmentTypeID != 0 {
		return &m, ShapeModule
	}
	return nil, ShapeUnknown
}

func present(keys map[string]json.RawMessage, key string) bool {
	v, ok := keys[key]
	return ok && string(v) != "null"
}
