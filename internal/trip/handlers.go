package trip

import (
	"mime/multipart"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/auth"
	"github.com/agehcx/hiking-app-sub000/internal/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const photoField = "photo"

// PhotoStore persists uploaded trip photos.
type PhotoStore interface {
	Save(fh *multipart.FileHeader, prefix string) (storage.Object, error)
	Remove(name string) error
}

type Handlers struct {
	svc    *Service
	photos PhotoStore
	log    *zap.Logger
}

func NewHandlers(svc *Service, photos PhotoStore, log *zap.Logger) *Handlers {
	return &Handlers{svc: svc, photos: photos, log: log}
}

// RegisterRoutes mounts the trip API. optionalAuth identifies callers on
// reads that anonymous users may also perform.
func RegisterRoutes(r fiber.Router, h *Handlers, authMiddleware, optionalAuth fiber.Handler) {
	r.Post("/", authMiddleware, h.create)
	r.Get("/", authMiddleware, h.listMine)
	r.Get("/public", h.listPublic)
	r.Get("/:id", optionalAuth, h.get)
	r.Put("/:id", authMiddleware, h.update)
	r.Delete("/:id", authMiddleware, h.delete)
	r.Post("/:id/reviews", authMiddleware, h.addReview)
	r.Post("/:id/participants", authMiddleware, h.addParticipant)
	r.Patch("/:id/steps/:stepId", authMiddleware, h.updateStep)
	r.Post("/:id/photos", authMiddleware, h.uploadPhoto)
}

func (h *Handlers) create(c *fiber.Ctx) error {
	input := Draft()
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Invalid request body").Wrap(err)
	}
	t, err := h.svc.CreateTrip(c.UserContext(), auth.UserID(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) listMine(c *fiber.Ctx) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	f.OwnerID = auth.UserID(c)
	return h.list(c, f)
}

func (h *Handlers) listPublic(c *fiber.Ctx) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	f.PublicOnly = true
	return h.list(c, f)
}

func (h *Handlers) list(c *fiber.Ctx, f ListFilter) error {
	trips, err := h.svc.ListTrips(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(trips), "trips": trips})
}

func (h *Handlers) get(c *fiber.Ctx) error {
	t, err := h.svc.GetVisibleTrip(c.UserContext(), c.Params("id"), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) update(c *fiber.Ctx) error {
	input := Draft()
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Invalid request body").Wrap(err)
	}
	t, err := h.svc.UpdateTrip(c.UserContext(), c.Params("id"), auth.UserID(c), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) delete(c *fiber.Ctx) error {
	if err := h.svc.DeleteTrip(c.UserContext(), c.Params("id"), auth.UserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Trip deleted"})
}

func (h *Handlers) addReview(c *fiber.Ctx) error {
	var input ReviewInput
	if err := c.BodyParser(&input); err != nil {
		return apperrors.Validation("Invalid request body").Wrap(err)
	}
	t, err := h.svc.AddReview(c.UserContext(), c.Params("id"), auth.UserID(c), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) addParticipant(c *fiber.Ctx) error {
	var p Participant
	if err := c.BodyParser(&p); err != nil {
		return apperrors.Validation("Invalid request body").Wrap(err)
	}
	t, err := h.svc.AddParticipant(c.UserContext(), c.Params("id"), auth.UserID(c), p)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) updateStep(c *fiber.Ctx) error {
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperrors.Validation("Invalid request body").Wrap(err)
	}
	if body.Completed == nil {
		return apperrors.Validation("completed is required").WithField("completed")
	}
	t, err := h.svc.UpdateStep(c.UserContext(), c.Params("id"), auth.UserID(c), c.Params("stepId"), *body.Completed)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "trip": t})
}

func (h *Handlers) uploadPhoto(c *fiber.Ctx) error {
	tripID, callerID := c.Params("id"), auth.UserID(c)
	if err := h.svc.CheckOwner(c.UserContext(), tripID, callerID); err != nil {
		return err
	}

	fh, err := c.FormFile(photoField)
	if err != nil {
		return apperrors.FileUpload("No file uploaded").WithField(photoField).Wrap(err)
	}
	obj, err := h.photos.Save(fh, tripID)
	if err != nil {
		return err
	}

	t, err := h.svc.AddPhoto(c.UserContext(), tripID, callerID, obj.URL)
	if err != nil {
		if rmErr := h.photos.Remove(obj.Name); rmErr != nil {
			h.log.Warn("orphaned upload", zap.String("name", obj.Name), zap.Error(rmErr))
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "photo": obj, "trip": t})
}

func filterFromQuery(c *fiber.Ctx) (ListFilter, error) {
	f := ListFilter{
		Status: c.Query("status"),
		Tag:    c.Query("tag"),
		Limit:  c.QueryInt("limit", defaultPageSize),
		Offset: c.QueryInt("offset", 0),
	}
	var err error
	if f.From, err = queryDate(c, "from"); err != nil {
		return ListFilter{}, err
	}
	if f.To, err = queryDate(c, "to"); err != nil {
		return ListFilter{}, err
	}
	return f, nil
}

// queryDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if t, ok := parseDate(raw); ok {
		return &t, nil
	}
	return nil, apperrors.Cast(key + " must be a date").WithField(key)
}
