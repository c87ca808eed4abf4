package gateway

import (
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists gateway callback deliveries.
type Repository interface {
	CreateEventIfNotExists(event *models.GatewayEvent) (bool, *models.GatewayEvent, error)
	MarkEventProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateEventIfNotExists(event *models.GatewayEvent) (bool, *models.GatewayEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.GatewayEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.GatewayEvent{}).Where("id = ?", id).Updates(updates).Error
}
