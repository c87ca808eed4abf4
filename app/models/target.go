package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetKind tells which purchasable context a reference points to.
type TargetKind string

const (
	TargetSession TargetKind = "session"
	TargetModule  TargetKind = "module"
)

// TargetRef is a tagged reference to a course session or an educational module.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   uint       `json:"id"`
}

func SessionRef(id uint) TargetRef { return TargetRef{Kind: TargetSession, ID: id} }
func ModuleRef(id uint) TargetRef  { return TargetRef{Kind: TargetModule, ID: id} }

func (r TargetRef) IsSession() bool { return r.Kind == TargetSession && r.ID > 0 }
func (r TargetRef) IsModule() bool  { return r.Kind == TargetModule && r.ID > 0 }

// Valid reports whether the reference names a known kind and a non-zero id.
func (r TargetRef) Valid() bool { return r.IsSession() || r.IsModule() }

func (r TargetRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ParseTargetRef parses the "kind:id" form produced by String.
func ParseTargetRef(s string) (TargetRef, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TargetRef{}, fmt.Errorf("invalid target reference %q", s)
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return TargetRef{}, fmt.Errorf("invalid target id in %q: %w", s, err)
	}
	ref := TargetRef{Kind: TargetKind(kind), ID: uint(id)}
	if !ref.Valid() {
		return TargetRef{}, fmt.Errorf("invalid target reference %q", s)
	}
	return ref, nil
}

// Purchasable is the capability shared by everything a purchaser can pay for
// as the main item of an order.
type Purchasable interface {
	Ref() TargetRef
	PurchaseID() uint
	PurchaseTitle() string
	PurchasePrice() int
}

// SessionOffer is a session enrollment mode together with its session.
type SessionOffer struct {
	Mode    SessionEnrollmentType
	Session CourseSession
}

func (o SessionOffer) Ref() TargetRef        { return SessionRef(o.Session.ID) }
func (o SessionOffer) PurchaseID() uint      { return o.Mode.ID }
func (o SessionOffer) PurchaseTitle() string { return o.Session.Title }
func (o SessionOffer) PurchasePrice() int    { return o.Mode.Price }

// ModuleOffer is a module enrollment mode together with its module and the
// ordered sessions it bundles.
type ModuleOffer struct {
	Mode     ModuleEnrollmentType
	Module   EducationalModule
	Sessions []SessionOffer
}

func (o ModuleOffer) Ref() TargetRef        { return ModuleRef(o.Module.ID) }
func (o ModuleOffer) PurchaseID() uint      { return o.Mode.ID }
func (o ModuleOffer) PurchaseTitle() string { return o.Module.Title }
func (o ModuleOffer) PurchasePrice() int    { return o.Mode.Price }

// FirstSession returns the session offer with the given id, or the first
// bundled session when id is zero.
func (o ModuleOffer) FirstSession(sessionID uint) (SessionOffer, bool) {
	if len(o.Sessions) == 0 {
		return SessionOffer{}, false
	}
	if sessionID == 0 {
		return o.Sessions[0], true
	}
	for _, s := range o.Sessions {
		if s.Session.ID == sessionID {
			return s, true
		}
	}
	return SessionOffer{}, false
}
