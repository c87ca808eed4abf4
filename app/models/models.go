package models

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&CourseSession{},
		&SessionEnrollmentType{},
		&EducationalModule{},
		&ModuleSession{},
		&ModuleEnrollmentType{},
		&Participant{},
		&EnrollmentReason{},
		&ModuleEnrollment{},
		&ModuleEnrollmentReason{},
		&Upsale{},
		&UpsaleLink{},
		&ObjectEnrollment{},
		&OuterPayment{},
		&Payment{},
		&GatewayEvent{},
		&PromoCode{},
		&PromoCodeTarget{},
		&PromoCodeRedemption{},
		&GiftPaymentInfo{},
	}
}
