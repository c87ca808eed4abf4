package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func validInput() UpsaleInput {
	return UpsaleInput{
		Slug:             "mentor",
		Title:            "Personal mentor",
		ShortDescription: "Weekly calls with a mentor",
		Price:            500,
	}
}

func TestValidateUpsale(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(repository.NewRepositories(db))
	base := dbtest.Upsale(t, db, "base", 100)

	tests := []struct {
		name   string
		mutate func(in *UpsaleInput)
		field  string
		want   string
	}{
		{"valid", func(in *UpsaleInput) {}, "", ""},
		{"short description too short", func(in *UpsaleInput) { in.ShortDescription = "short" }, "short_description", "at least 20"},
		{"description too short", func(in *UpsaleInput) { in.Description = strings.Repeat("a", 59) }, "description", "at least 60"},
		{"description empty is fine", func(in *UpsaleInput) { in.Description = "" }, "", ""},
		{"price too high", func(in *UpsaleInput) { in.Price = 1000000 }, "price", "at most 999999"},
		{"bad slug", func(in *UpsaleInput) { in.Slug = "with space" }, "slug", "letters"},
		{"required malformed", func(in *UpsaleInput) { in.Required = "1;2" }, "required", "separated by commas"},
		{"required unknown", func(in *UpsaleInput) { in.Required = "998,999" }, "required", "unknown upsale ids: 998, 999"},
		{"required known", func(in *UpsaleInput) { in.Required = itoa(base.ID) }, "", ""},
		{"bad emails", func(in *UpsaleInput) { in.Emails = "ok@example.com, nope, also@" }, "emails", "nope, also@"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := svc.ValidateUpsale(context.Background(), &in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			fe, ok := AsFieldErrors(err)
			require.True(t, ok, "expected field errors, got %v", err)
			assert.Contains(t, fe[tt.field], tt.want)
		})
	}
}

func TestSaveUpsale(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(repository.NewRepositories(db))

	u, err := svc.SaveUpsale(context.Background(), 0, validInput())
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	in := validInput()
	in.Title = "Mentor"
	updated, err := svc.SaveUpsale(context.Background(), u.ID, in)
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "Mentor", updated.Title)

	_, err = svc.SaveUpsale(context.Background(), 0, validInput())
	fe, ok := AsFieldErrors(err)
	require.True(t, ok)
	assert.Contains(t, fe["slug"], "already exists")
}

func linkInfo(t *testing.T, file string, sent int) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"promo": map[string]any{"file": file, "already_sent": sent}})
	require.NoError(t, err)
	return datatypes.JSON(raw)
}

func TestSaveUpsaleLink_PromoCursor(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(repository.NewRepositories(db))
	s := dbtest.Session(t, db, "s1", 1000)
	u := dbtest.Upsale(t, db, "mentor", 200)

	link := &models.UpsaleLink{UpsaleID: u.ID, TargetType: models.TargetSession, TargetID: s.Session.ID,
		IsActive: true, IsPaid: models.UpsaleLinkPaid, AdditionalInfo: linkInfo(t, "codes.txt", 17)}
	require.NoError(t, svc.SaveUpsaleLink(context.Background(), link))
	p, err := link.Promo()
	require.NoError(t, err)
	assert.Equal(t, 0, p.AlreadySent)

	require.NoError(t, db.Model(&models.UpsaleLink{}).Where("id = ?", link.ID).
		Update("additional_info", linkInfo(t, "codes.txt", 4)).Error)

	edit := &models.UpsaleLink{ID: link.ID, UpsaleID: u.ID, TargetType: models.TargetSession, TargetID: s.Session.ID,
		IsActive: true, IsPaid: models.UpsaleLinkPaid, AdditionalInfo: linkInfo(t, "other.txt", 0)}
	require.NoError(t, svc.SaveUpsaleLink(context.Background(), edit))

	var stored models.UpsaleLink
	require.NoError(t, db.First(&stored, link.ID).Error)
	p, err = stored.Promo()
	require.NoError(t, err)
	assert.Equal(t, "other.txt", p.File)
	assert.Equal(t, 4, p.AlreadySent)
}

func TestSaveUpsaleLink_Rejections(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(repository.NewRepositories(db))
	s := dbtest.Session(t, db, "s1", 1000)
	u := dbtest.Upsale(t, db, "mentor", 200)
	dbtest.Link(t, db, u, s.Ref(), nil)

	tests := []struct {
		name  string
		link  models.UpsaleLink
		field string
	}{
		{"duplicate", models.UpsaleLink{UpsaleID: u.ID, TargetType: models.TargetSession, TargetID: s.Session.ID, IsPaid: models.UpsaleLinkPaid}, "upsale_id"},
		{"unknown upsale", models.UpsaleLink{UpsaleID: 999, TargetType: models.TargetSession, TargetID: s.Session.ID, IsPaid: models.UpsaleLinkPaid}, "upsale_id"},
		{"no target", models.UpsaleLink{UpsaleID: u.ID, IsPaid: models.UpsaleLinkPaid}, "target"},
		{"bad kind", models.UpsaleLink{UpsaleID: u.ID, TargetType: models.TargetModule, TargetID: 1, IsPaid: "maybe"}, "is_paid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := tt.link
			fe, ok := AsFieldErrors(svc.SaveUpsaleLink(context.Background(), &link))
			require.True(t, ok)
			assert.Contains(t, fe, tt.field)
		})
	}
}

func TestValidateObjectEnrollment(t *testing.T) {
	tests := []struct {
		enrollment, payment string
		ok                  bool
	}{
		{models.EnrollmentTypePaid, models.PaymentTypeExternal, true},
		{models.EnrollmentTypePaid, models.PaymentTypeOther, true},
		{models.EnrollmentTypeFree, models.PaymentTypeNone, true},
		{models.EnrollmentTypePaid, models.PaymentTypeNone, false},
		{models.EnrollmentTypeFree, models.PaymentTypeExternal, false},
	}
	for _, tt := range tests {
		err := ValidateObjectEnrollment(models.ObjectEnrollment{EnrollmentType: tt.enrollment, PaymentType: tt.payment})
		assert.Equal(t, tt.ok, err == nil, "%s/%s", tt.enrollment, tt.payment)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessIcon(t *testing.T) {
	icon, err := ProcessIcon(encodePNG(t, 300, 200))
	require.NoError(t, err)
	assert.Equal(t, 300, icon.Width)
	thumb, err := png.DecodeConfig(bytes.NewReader(icon.Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Width)
	assert.Equal(t, 100, thumb.Height)

	_, err = ProcessIcon(encodePNG(t, 1001, 10))
	assert.ErrorContains(t, err, "1000x1000")

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))
	_, err = ProcessIcon(jpg.Bytes())
	assert.ErrorContains(t, err, "PNG")

	_, err = ProcessIcon(make([]byte, MaxIconBytes+1))
	assert.ErrorContains(t, err, "1 MB")
}

func TestSetUpsaleIcon(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(repository.NewRepositories(db))
	upsale := dbtest.Upsale(t, db, "mentor", 100)
	dir := t.TempDir()

	saved, err := svc.SetUpsaleIcon(context.Background(), upsale.ID, encodePNG(t, 64, 64), dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(saved.Icon, "upsales/mentor-"))
	assert.True(t, strings.HasSuffix(saved.IconThumbnail, "-thumb.png"))
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(saved.Icon)))
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(saved.IconThumbnail)))

	var stored models.Upsale
	require.NoError(t, db.First(&stored, upsale.ID).Error)
	assert.Equal(t, saved.Icon, stored.Icon)

	_, err = svc.SetUpsaleIcon(context.Background(), upsale.ID, []byte("not an image"), dir)
	_, ok := AsFieldErrors(err)
	assert.True(t, ok)
}

func itoa(v uint) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
