package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"drawboard/internal/auth"
	"drawboard/internal/collab"
	"drawboard/internal/element"
	"drawboard/internal/errs"
	"drawboard/internal/metrics"
	"drawboard/internal/middleware"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
)

// RosterReader cluster-wide roster lookup (Redis presence mirror).
type RosterReader interface {
	GetRoster(ctx context.Context, roomID string) ([]protocol.Participant, error)
}

// DrawingHandler 드로잉 REST 핸들러
type DrawingHandler struct {
	drawings repository.DrawingRepository
	access   *middleware.DrawingMiddleware
	jwt      *auth.JWTManager
	registry *collab.Registry
	roster   RosterReader
	log      *zap.SugaredLogger
}

// NewDrawingHandler DrawingHandler 생성 (roster는 nil 가능)
func NewDrawingHandler(drawings repository.DrawingRepository, access *middleware.DrawingMiddleware, jwt *auth.JWTManager, registry *collab.Registry, roster RosterReader, log *zap.SugaredLogger) *DrawingHandler {
	return &DrawingHandler{
		drawings: drawings,
		access:   access,
		jwt:      jwt,
		registry: registry,
		roster:   roster,
		log:      log,
	}
}

// CreateDrawingRequest 드로잉 생성 요청
type CreateDrawingRequest struct {
	Name     string                               `json:"name" validate:"required,min=1,max=200"`
	Elements []element.Element                    `json:"elements"`
	AppState map[string]any                       `json:"appState"`
	Files    map[string]repository.FileDescriptor `json:"files"`
}

// ShareRequest 공유 링크 생성 요청
type ShareRequest struct {
	Permission protocol.Permission `json:"permission" validate:"required,oneof=view edit"`
}

// ShareResponse 공유 링크 응답
type ShareResponse struct {
	Token      string              `json:"token"`
	Permission protocol.Permission `json:"permission"`
	DrawingID  string              `json:"drawingId"`
}

// Register mounts the /api/drawings routes.
func (h *DrawingHandler) Register(router fiber.Router) {
	group := router.Group("/api/drawings", auth.OptionalAuthMiddleware(h.jwt))
	group.Post("", h.CreateDrawing)
	group.Get("", h.ListDrawings)
	group.Get("/:id", h.access.RequireAccess(), h.GetDrawing)
	group.Put("/:id", h.access.RequireEdit(), h.UpdateDrawing)
	group.Post("/:id/share", h.access.RequireOwnership(), h.ShareDrawing)
	group.Get("/:id/participants", h.access.RequireAccess(), h.GetParticipants)
}

// errorStatus 도메인 에러 -> HTTP 상태
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *DrawingHandler) fail(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		h.log.Errorf("[Drawing] %s %s: %v", c.Method(), c.Path(), err)
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// CreateDrawing POST /api/drawings
func (h *DrawingHandler) CreateDrawing(c *fiber.Ctx) error {
	userID := auth.UserIDFromContext(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization token"})
	}

	var req CreateDrawingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := protocol.Validate(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	d, err := h.drawings.Create(c.UserContext(), &repository.Drawing{
		Name:     req.Name,
		OwnerID:  userID,
		Elements: element.FilterVisible(req.Elements),
		AppState: req.AppState,
		Files:    req.Files,
	})
	if err != nil {
		return h.fail(c, err)
	}

	h.log.Infof("[Drawing] User %d created drawing %s", userID, d.ID)
	return c.Status(fiber.StatusCreated).JSON(d)
}

// ListDrawings GET /api/drawings
func (h *DrawingHandler) ListDrawings(c *fiber.Ctx) error {
	userID := auth.UserIDFromContext(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization token"})
	}

	list, err := h.drawings.ListByOwner(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

// GetDrawing GET /api/drawings/:id
func (h *DrawingHandler) GetDrawing(c *fiber.Ctx) error {
	d, err := h.drawings.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(d)
}

// UpdateDrawing PUT /api/drawings/:id (편집 권한 필요)
func (h *DrawingHandler) UpdateDrawing(c *fiber.Ctx) error {
	var patch repository.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := protocol.Validate(patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if patch.Empty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}
	if patch.Elements != nil {
		visible := element.FilterVisible(*patch.Elements)
		patch.Elements = &visible
	}

	d, err := h.drawings.Update(c.UserContext(), c.Params("id"), patch)
	metrics.RecordSave(err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(d)
}

// ShareDrawing POST /api/drawings/:id/share (소유자만)
func (h *DrawingHandler) ShareDrawing(c *fiber.Ctx) error {
	drawingID := c.Params("id")

	var req ShareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := protocol.Validate(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "permission must be view or edit"})
	}

	token, err := h.jwt.GenerateShareToken(drawingID, req.Permission)
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Infof("[Drawing] Share link (%s) issued for %s", req.Permission, drawingID)
	return c.Status(fiber.StatusCreated).JSON(ShareResponse{
		Token:      token,
		Permission: req.Permission,
		DrawingID:  drawingID,
	})
}

// GetParticipants GET /api/drawings/:id/participants
func (h *DrawingHandler) GetParticipants(c *fiber.Ctx) error {
	id := c.Params("id")

	if h.roster != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		roster, err := h.roster.GetRoster(ctx, id)
		if err == nil {
			return c.JSON(roster)
		}
		h.log.Warnf("[Drawing] Presence lookup for %s failed, using local roster: %v", id, err)
	}
	return c.JSON(h.registry.Participants(id))
}
