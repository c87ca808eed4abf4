package payments

import (
	"errors"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides the DB operations of order building and confirmation.
// Every write keyed by a natural key is an upsert or a conflict-ignoring
// insert, so concurrent callers converge on one row.
type Store interface {
	Transaction(fn func(s Store) error) error

	GetPayment(orderNumber string) (*models.Payment, error)
	CreatePaymentIfNotExists(payment *models.Payment) (bool, error)
	UpdatePendingOrder(id uint, amount int, metadata datatypes.JSON) error
	MarkPaid(id uint, shopAmount *float64, performedAt time.Time) error
	MarkGranting(id uint) (bool, error)
	LockPayment(id uint) (*models.Payment, error)
	MarkGranted(id uint, at time.Time) error

	GetOrCreateParticipant(sessionID, userID uint) (*models.Participant, bool, error)
	GetOrCreateEnrollmentReason(reason *models.EnrollmentReason) (bool, error)
	UpsertModuleEnrollment(enrollment *models.ModuleEnrollment) error
	GetOrCreateModuleEnrollmentReason(reason *models.ModuleEnrollmentReason) (bool, error)

	GetObjectEnrollment(userID, linkID uint) (*models.ObjectEnrollment, error)
	UpsertObjectEnrollment(enrollment *models.ObjectEnrollment) error
	LockLink(id uint) (*models.UpsaleLink, error)
	SaveLinkInfo(link *models.UpsaleLink) error

	CreateGift(gift *models.GiftPaymentInfo) error
	FindGiftCandidates(receiverID, senderID uint, target models.TargetRef) ([]models.GiftPaymentInfo, error)
	MarkGiftPaid(id uint) error

	RedeemPromoCode(code, orderNumber string) (bool, error)
	CreateOuterPayment(payment *models.OuterPayment) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a payments store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(fn func(s Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetPayment(orderNumber string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.Where("order_number = ?", orderNumber).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) CreatePaymentIfNotExists(payment *models.Payment) (bool, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_number"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	// The insert id reported on conflict is not reliable, reload by key.
	payment.ID = 0
	if err := s.db.Where("order_number = ?", payment.OrderNumber).First(payment).Error; err != nil {
		return false, err
	}
	return created, nil
}

func (s *gormStore) UpdatePendingOrder(id uint, amount int, metadata datatypes.JSON) error {
	// Only unpaid rows may change; a concurrent settlement wins.
	tx := s.db.Model(&models.Payment{}).
		Where("id = ? AND is_paid = ?", id, false).
		Updates(map[string]interface{}{
			"order_amount": amount,
			"metadata":     metadata,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrPaidOrderAmountChanged
	}
	return nil
}

func (s *gormStore) MarkPaid(id uint, shopAmount *float64, performedAt time.Time) error {
	return s.db.Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_paid":      true,
		"shop_amount":  shopAmount,
		"performed_at": &performedAt,
	}).Error
}

func (s *gormStore) MarkGranting(id uint) (bool, error) {
	tx := s.db.Model(&models.Payment{}).
		Where("id = ? AND grant_status = ?", id, models.GrantStatusCreated).
		Update("grant_status", models.GrantStatusGranting)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) LockPayment(id uint) (*models.Payment, error) {
	var p models.Payment
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) MarkGranted(id uint, at time.Time) error {
	return s.db.Model(&models.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"grant_status": models.GrantStatusGranted,
		"granted_at":   &at,
	}).Error
}

func (s *gormStore) GetOrCreateParticipant(sessionID, userID uint) (*models.Participant, bool, error) {
	p := &models.Participant{SessionID: sessionID, UserID: userID}
	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return nil, false, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Participant
	if err := s.db.Where("session_id = ? AND user_id = ?", sessionID, userID).First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

func (s *gormStore) GetOrCreateEnrollmentReason(reason *models.EnrollmentReason) (bool, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "participant_id"},
			{Name: "session_enrollment_type_id"},
			{Name: "payment_type"},
			{Name: "payment_order_id"},
		},
		DoNothing: true,
	}).Create(reason)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	reason.ID = 0
	err := s.db.Where(
		"participant_id = ? AND session_enrollment_type_id = ? AND payment_type = ? AND payment_order_id = ?",
		reason.ParticipantID, reason.SessionEnrollmentTypeID, reason.PaymentType, reason.PaymentOrderID,
	).First(reason).Error
	return created, err
}

func (s *gormStore) UpsertModuleEnrollment(enrollment *models.ModuleEnrollment) error {
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_paid", "is_active", "updated_at"}),
	}).Create(enrollment).Error; err != nil {
		return err
	}

	enrollment.ID = 0
	return s.db.Where("user_id = ? AND module_id = ?", enrollment.UserID, enrollment.ModuleID).
		First(enrollment).Error
}

func (s *gormStore) GetOrCreateModuleEnrollmentReason(reason *models.ModuleEnrollmentReason) (bool, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "module_enrollment_id"},
			{Name: "module_enrollment_type_id"},
			{Name: "payment_type"},
			{Name: "payment_order_id"},
			{Name: "full_paid"},
		},
		DoNothing: true,
	}).Create(reason)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	reason.ID = 0
	err := s.db.Where(
		"module_enrollment_id = ? AND module_enrollment_type_id = ? AND payment_type = ? AND payment_order_id = ? AND full_paid = ?",
		reason.ModuleEnrollmentID, reason.ModuleEnrollmentTypeID, reason.PaymentType, reason.PaymentOrderID, reason.FullPaid,
	).First(reason).Error
	return created, err
}

func (s *gormStore) GetObjectEnrollment(userID, linkID uint) (*models.ObjectEnrollment, error) {
	var e models.ObjectEnrollment
	err := s.db.Where("user_id = ? AND upsale_link_id = ?", userID, linkID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *gormStore) UpsertObjectEnrollment(enrollment *models.ObjectEnrollment) error {
	columns := []string{
		"enrollment_type",
		"payment_type",
		"payment_order_id",
		"payment_descriptions",
		"is_active",
		"updated_at",
	}
	if len(enrollment.Payload) > 0 {
		columns = append(columns, "payload")
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "upsale_link_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(enrollment).Error; err != nil {
		return err
	}

	enrollment.ID = 0
	return s.db.Where("user_id = ? AND upsale_link_id = ?", enrollment.UserID, enrollment.UpsaleLinkID).
		First(enrollment).Error
}

func (s *gormStore) LockLink(id uint) (*models.UpsaleLink, error) {
	var link models.UpsaleLink
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&link, id).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *gormStore) SaveLinkInfo(link *models.UpsaleLink) error {
	return s.db.Model(&models.UpsaleLink{}).Where("id = ?", link.ID).
		Update("additional_info", link.AdditionalInfo).Error
}

func (s *gormStore) CreateGift(gift *models.GiftPaymentInfo) error {
	return s.db.Create(gift).Error
}

func (s *gormStore) FindGiftCandidates(receiverID, senderID uint, target models.TargetRef) ([]models.GiftPaymentInfo, error) {
	var gifts []models.GiftPaymentInfo
	err := s.db.Where("receiver_id = ? AND sender_id = ? AND target_type = ? AND target_id = ?",
		receiverID, senderID, target.Kind, target.ID).
		Find(&gifts).Error
	return gifts, err
}

func (s *gormStore) MarkGiftPaid(id uint) error {
	return s.db.Model(&models.GiftPaymentInfo{}).Where("id = ?", id).Update("has_paid", true).Error
}

// RedeemPromoCode counts one use of the code for the order. The redemption
// row makes repeated calls for the same order a no-op; the counter itself is
// incremented in SQL.
func (s *gormStore) RedeemPromoCode(code, orderNumber string) (bool, error) {
	var promo models.PromoCode
	err := s.db.Where("code = ?", code).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrPromoCodeMissing
	}
	if err != nil {
		return false, err
	}

	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "promo_code_id"}, {Name: "order_number"}},
		DoNothing: true,
	}).Create(&models.PromoCodeRedemption{PromoCodeID: promo.ID, OrderNumber: orderNumber})
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}

	err = s.db.Model(&models.PromoCode{}).Where("id = ?", promo.ID).
		Update("used", gorm.Expr("used + ?", 1)).Error
	return err == nil, err
}

func (s *gormStore) CreateOuterPayment(payment *models.OuterPayment) error {
	return s.db.Create(payment).Error
}
