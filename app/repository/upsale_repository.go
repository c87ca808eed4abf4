package repository

import (
	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsaleRepository implements the UpsaleRepository interface
type upsaleRepository struct {
	db *gorm.DB
}

// NewUpsaleRepository creates a new upsale repository instance
func NewUpsaleRepository(db *gorm.DB) UpsaleRepository {
	return &upsaleRepository{db: db}
}

// GetUpsale retrieves an upsale definition by its ID
func (r *upsaleRepository) GetUpsale(id uint) (*models.Upsale, error) {
	var u models.Upsale
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpsaleBySlug retrieves an upsale definition by its slug
func (r *upsaleRepository) GetUpsaleBySlug(slug string) (*models.Upsale, error) {
	var u models.Upsale
	if err := r.db.Where("slug = ?", slug).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUpsale creates or updates an upsale definition
func (r *upsaleRepository) SaveUpsale(upsale *models.Upsale) error {
	return r.db.Save(upsale).Error
}

// ExistingUpsaleIDs returns the subset of ids that exist
func (r *upsaleRepository) ExistingUpsaleIDs(ids []uint) ([]uint, error) {
	var out []uint
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.Model(&models.Upsale{}).Where("id IN ?", ids).Pluck("id", &out).Error
	return out, err
}

// GetLink retrieves an upsale link with its definition
func (r *upsaleRepository) GetLink(id uint) (*models.UpsaleLink, error) {
	var link models.UpsaleLink
	if err := r.db.Preload("Upsale").First(&link, id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// FindLink retrieves the link of an upsale to a target
func (r *upsaleRepository) FindLink(target models.TargetRef, upsaleID uint) (*models.UpsaleLink, error) {
	var link models.UpsaleLink
	err := r.db.Preload("Upsale").
		Where("target_type = ? AND target_id = ? AND upsale_id = ?", target.Kind, target.ID, upsaleID).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// SaveLink creates or updates a link without touching its definition
func (r *upsaleRepository) SaveLink(link *models.UpsaleLink) error {
	return r.db.Omit(clause.Associations).Save(link).Error
}

// GetLinks retrieves links by id in id order, regardless of their state
func (r *upsaleRepository) GetLinks(ids []uint) ([]models.UpsaleLink, error) {
	var links []models.UpsaleLink
	if len(ids) == 0 {
		return links, nil
	}
	err := r.db.Preload("Upsale").Where("id IN ?", ids).Order("id").Find(&links).Error
	return links, err
}

// GetActiveLinks retrieves active links by id in id order
func (r *upsaleRepository) GetActiveLinks(ids []uint) ([]models.UpsaleLink, error) {
	var links []models.UpsaleLink
	if len(ids) == 0 {
		return links, nil
	}
	err := r.db.Preload("Upsale").Where("id IN ? AND is_active = ?", ids, true).Order("id").Find(&links).Error
	return links, err
}

// ListActiveLinksForTarget lists the active links offered with a target
func (r *upsaleRepository) ListActiveLinksForTarget(target models.TargetRef) ([]models.UpsaleLink, error) {
	var links []models.UpsaleLink
	err := r.db.Preload("Upsale").
		Where("target_type = ? AND target_id = ? AND is_active = ?", target.Kind, target.ID, true).
		Order("id").
		Find(&links).Error
	return links, err
}

// CountActiveEnrollments counts active entitlements sold for a link
func (r *upsaleRepository) CountActiveEnrollments(linkID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.ObjectEnrollment{}).
		Where("upsale_link_id = ? AND is_active = ?", linkID, true).
		Count(&n).Error
	return n, err
}

// OwnedUpsaleIDs returns the upsale definition ids a user already owns for a target
func (r *upsaleRepository) OwnedUpsaleIDs(userID uint, target models.TargetRef) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.ObjectEnrollment{}).
		Joins("JOIN upsale_links ON upsale_links.id = object_enrollments.upsale_link_id").
		Where("object_enrollments.user_id = ? AND object_enrollments.is_active = ?", userID, true).
		Where("upsale_links.target_type = ? AND upsale_links.target_id = ?", target.Kind, target.ID).
		Distinct().
		Pluck("upsale_links.upsale_id", &ids).Error
	return ids, err
}
