// Package dbtest opens migrated in-memory SQLite databases and seeds catalog
// fixtures for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh database shared by every connection of the test.
// The pool is limited to one connection so concurrent goroutines serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

// User stores a local account mirror.
func User(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()
	u := models.User{
		ID:        id,
		Username:  fmt.Sprintf("user%d", id),
		Email:     fmt.Sprintf("user%d@example.com", id),
		FirstName: fmt.Sprintf("User %d", id),
	}
	mustCreate(t, db, &u)
	return u
}

// Session stores a started session with an active verified mode.
func Session(t *testing.T, db *gorm.DB, slug string, price int) models.SessionOffer {
	t.Helper()
	start := time.Now().Add(-24 * time.Hour)
	s := models.CourseSession{Slug: slug, Title: "Course " + slug, CourseRef: "course-v1:" + slug, StartsAt: &start}
	mustCreate(t, db, &s)
	et := models.SessionEnrollmentType{SessionID: s.ID, Mode: models.ModeVerified, Price: price, Active: true}
	mustCreate(t, db, &et)
	return models.SessionOffer{Mode: et, Session: s}
}

// Module stores a module bundling the given sessions in order.
func Module(t *testing.T, db *gorm.DB, code string, price int, sessions ...models.SessionOffer) models.ModuleOffer {
	t.Helper()
	m := models.EducationalModule{Code: code, Title: "Module " + code}
	mustCreate(t, db, &m)
	et := models.ModuleEnrollmentType{ModuleID: m.ID, Mode: models.ModeVerified, Price: price, Active: true}
	mustCreate(t, db, &et)
	for i, s := range sessions {
		mustCreate(t, db, &models.ModuleSession{ModuleID: m.ID, SessionID: s.Session.ID, Position: i})
	}
	return models.ModuleOffer{Mode: et, Module: m, Sessions: sessions}
}

// Upsale stores an upsale definition.
func Upsale(t *testing.T, db *gorm.DB, slug string, price int) models.Upsale {
	t.Helper()
	u := models.Upsale{Slug: slug, Title: "Upsale " + slug, Price: price}
	mustCreate(t, db, &u)
	return u
}

// Link binds an upsale to a target and reloads it with its definition.
func Link(t *testing.T, db *gorm.DB, upsale models.Upsale, target models.TargetRef, price *int) models.UpsaleLink {
	t.Helper()
	l := models.UpsaleLink{UpsaleID: upsale.ID, TargetType: target.Kind, TargetID: target.ID, IsActive: true, IsPaid: models.UpsaleLinkPaid, Price: price}
	if err := db.Omit("Upsale").Create(&l).Error; err != nil {
		t.Fatalf("create link: %v", err)
	}
	if err := db.Preload("Upsale").First(&l, l.ID).Error; err != nil {
		t.Fatalf("reload link: %v", err)
	}
	return l
}

// Count returns the number of rows of a model matching the conditions.
func Count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}
