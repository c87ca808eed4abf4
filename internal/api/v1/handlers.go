package apiv1

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/catalog"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
)

// Pong is the ping response.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer serves the catalog administration API.
type APIServer struct {
	catalog *catalog.Service
	store   payments.Store
	iconDir string
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *catalog.Service, store payments.Store, iconDir string) *APIServer {
	return &APIServer{catalog: svc, store: store, iconDir: iconDir}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostUpsale creates an upsale definition.
func (s *APIServer) PostUpsale(c *fiber.Ctx) error {
	return s.saveUpsale(c, 0, fiber.StatusCreated)
}

// PutUpsale replaces an upsale definition.
func (s *APIServer) PutUpsale(c *fiber.Ctx, id uint) error {
	return s.saveUpsale(c, id, fiber.StatusOK)
}

func (s *APIServer) saveUpsale(c *fiber.Ctx, id uint, status int) error {
	var in catalog.UpsaleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	upsale, err := s.catalog.SaveUpsale(c.UserContext(), id, in)
	if err != nil {
		return respond(c, err)
	}
	return c.Status(status).JSON(upsale)
}

// PostUpsaleIcon uploads the PNG icon of an upsale (multipart field "icon").
func (s *APIServer) PostUpsaleIcon(c *fiber.Ctx, id uint) error {
	fh, err := c.FormFile("icon")
	if err != nil {
		return badRequest(c, "icon file missing")
	}
	if fh.Size > catalog.MaxIconBytes {
		return respond(c, catalog.FieldErrors{"icon": "the image must not be larger than 1 MB"})
	}
	f, err := fh.Open()
	if err != nil {
		return respond(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, catalog.MaxIconBytes+1))
	if err != nil {
		return respond(c, err)
	}

	upsale, err := s.catalog.SetUpsaleIcon(c.UserContext(), id, data, s.iconDir)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(upsale)
}

// PostUpsaleLink creates an upsale link.
func (s *APIServer) PostUpsaleLink(c *fiber.Ctx) error {
	return s.saveLink(c, 0, fiber.StatusCreated)
}

// PutUpsaleLink replaces an upsale link. The promo cursor keeps its stored
// value whatever the body says.
func (s *APIServer) PutUpsaleLink(c *fiber.Ctx, id uint) error {
	return s.saveLink(c, id, fiber.StatusOK)
}

func (s *APIServer) saveLink(c *fiber.Ctx, id uint, status int) error {
	var link models.UpsaleLink
	if err := c.BodyParser(&link); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	link.ID = id
	link.Upsale = models.Upsale{}
	if err := s.catalog.SaveUpsaleLink(c.UserContext(), &link); err != nil {
		return respond(c, err)
	}
	return c.Status(status).JSON(link)
}

// PutObjectEnrollment grants or updates an upsale for a user by hand, e.g.
// for payments settled outside the gateway.
func (s *APIServer) PutObjectEnrollment(c *fiber.Ctx) error {
	var e models.ObjectEnrollment
	if err := c.BodyParser(&e); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if e.UserID == 0 || e.UpsaleLinkID == 0 {
		return respond(c, catalog.FieldErrors{"user_id": "user and upsale link are required"})
	}
	if err := catalog.ValidateObjectEnrollment(e); err != nil {
		return respond(c, err)
	}
	e.ID = 0
	if err := s.store.UpsertObjectEnrollment(&e); err != nil {
		return respond(c, err)
	}
	log.Infof("[Catalog] Object enrollment of user %d for link %d set (%s/%s)", e.UserID, e.UpsaleLinkID, e.EnrollmentType, e.PaymentType)
	return c.JSON(e)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func respond(c *fiber.Ctx, err error) error {
	if fe, ok := catalog.AsFieldErrors(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "fields": fe})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
}

func pathID(c *fiber.Ctx) (uint, bool) {
	v, err := strconv.ParseUint(c.Params("id"), 10, 64)
	return uint(v), err == nil && v > 0
}
