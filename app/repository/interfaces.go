package repository

import (
	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for the local mirror of SSO accounts
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByIDs(ids []uint) ([]models.User, error)
	Upsert(user *models.User) error
}

// CatalogRepository resolves purchasable sessions and modules
type CatalogRepository interface {
	GetSession(id uint) (*models.CourseSession, error)
	GetSessionOffer(sessionID uint, mode string) (*models.SessionOffer, error)
	GetSessionOfferByModeID(modeID uint) (*models.SessionOffer, error)
	GetModuleOffer(moduleID uint) (*models.ModuleOffer, error)
	GetModuleOfferByModeID(modeID uint) (*models.ModuleOffer, error)
}

// UpsaleRepository defines the interface for upsale definitions and their links
type UpsaleRepository interface {
	GetUpsale(id uint) (*models.Upsale, error)
	GetUpsaleBySlug(slug string) (*models.Upsale, error)
	SaveUpsale(upsale *models.Upsale) error
	ExistingUpsaleIDs(ids []uint) ([]uint, error)
	GetLink(id uint) (*models.UpsaleLink, error)
	FindLink(target models.TargetRef, upsaleID uint) (*models.UpsaleLink, error)
	SaveLink(link *models.UpsaleLink) error
	GetLinks(ids []uint) ([]models.UpsaleLink, error)
	GetActiveLinks(ids []uint) ([]models.UpsaleLink, error)
	ListActiveLinksForTarget(target models.TargetRef) ([]models.UpsaleLink, error)
	CountActiveEnrollments(linkID uint) (int64, error)
	OwnedUpsaleIDs(userID uint, target models.TargetRef) ([]uint, error)
}

// PromoCodeRepository defines the interface for promo code lookups
type PromoCodeRepository interface {
	GetByCode(code string) (*models.PromoCode, error)
	Create(promo *models.PromoCode) error
}

// Repositories holds all repository instances
type Repositories struct {
	User      UserRepository
	Catalog   CatalogRepository
	Upsale    UpsaleRepository
	PromoCode PromoCodeRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Catalog:   NewCatalogRepository(db),
		Upsale:    NewUpsaleRepository(db),
		PromoCode: NewPromoCodeRepository(db),
	}
}
