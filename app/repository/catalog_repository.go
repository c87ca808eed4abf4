package repository

import (
	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/gorm"
)

// catalogRepository implements the CatalogRepository interface
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository instance
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// GetSession retrieves a course session by its ID
func (r *catalogRepository) GetSession(id uint) (*models.CourseSession, error) {
	var session models.CourseSession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionOffer returns the active enrollment mode of a session
func (r *catalogRepository) GetSessionOffer(sessionID uint, mode string) (*models.SessionOffer, error) {
	var et models.SessionEnrollmentType
	err := r.db.Where("session_id = ? AND mode = ? AND active = ?", sessionID, mode, true).First(&et).Error
	if err != nil {
		return nil, err
	}
	return r.sessionOffer(et)
}

// GetSessionOfferByModeID returns the offer for an enrollment mode row,
// active or not, as referenced by an order
func (r *catalogRepository) GetSessionOfferByModeID(modeID uint) (*models.SessionOffer, error) {
	var et models.SessionEnrollmentType
	if err := r.db.First(&et, modeID).Error; err != nil {
		return nil, err
	}
	return r.sessionOffer(et)
}

func (r *catalogRepository) sessionOffer(et models.SessionEnrollmentType) (*models.SessionOffer, error) {
	session, err := r.GetSession(et.SessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionOffer{Mode: et, Session: *session}, nil
}

// GetModuleOffer returns the active module enrollment mode, preferring the
// verified mode, with the module's sessions in position order
func (r *catalogRepository) GetModuleOffer(moduleID uint) (*models.ModuleOffer, error) {
	var et models.ModuleEnrollmentType
	err := r.db.Where("module_id = ? AND active = ?", moduleID, true).
		Order(gorm.Expr("CASE WHEN mode = ? THEN 0 ELSE 1 END", models.ModeVerified)).
		Order("id").
		First(&et).Error
	if err != nil {
		return nil, err
	}
	return r.moduleOffer(et)
}

// GetModuleOfferByModeID returns the offer for a module enrollment mode row
func (r *catalogRepository) GetModuleOfferByModeID(modeID uint) (*models.ModuleOffer, error) {
	var et models.ModuleEnrollmentType
	if err := r.db.First(&et, modeID).Error; err != nil {
		return nil, err
	}
	return r.moduleOffer(et)
}

func (r *catalogRepository) moduleOffer(et models.ModuleEnrollmentType) (*models.ModuleOffer, error) {
	var module models.EducationalModule
	if err := r.db.First(&module, et.ModuleID).Error; err != nil {
		return nil, err
	}

	var links []models.ModuleSession
	if err := r.db.Where("module_id = ?", module.ID).Order("position").Order("id").Find(&links).Error; err != nil {
		return nil, err
	}

	offer := &models.ModuleOffer{Mode: et, Module: module}
	for _, l := range links {
		s, err := r.GetSessionOffer(l.SessionID, models.ModeVerified)
		if err == gorm.ErrRecordNotFound {
			// Sessions without a paid mode cannot be bought separately.
			continue
		}
		if err != nil {
			return nil, err
		}
		offer.Sessions = append(offer.Sessions, *s)
	}
	return offer, nil
}
