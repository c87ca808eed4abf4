package repository

import (
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/gorm"
)

// promoCodeRepository implements the PromoCodeRepository interface
type promoCodeRepository struct {
	db *gorm.DB
}

// NewPromoCodeRepository creates a new promo code repository instance
func NewPromoCodeRepository(db *gorm.DB) PromoCodeRepository {
	return &promoCodeRepository{db: db}
}

// GetByCode retrieves a promo code together with its product restrictions
func (r *promoCodeRepository) GetByCode(code string) (*models.PromoCode, error) {
	var p models.PromoCode
	err := r.db.Preload("Targets").Where("code = ?", strings.TrimSpace(code)).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create stores a new promo code and its restrictions
func (r *promoCodeRepository) Create(promo *models.PromoCode) error {
	return r.db.Create(promo).Error
}
