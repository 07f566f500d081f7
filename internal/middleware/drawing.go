package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"drawboard/internal/auth"
	"drawboard/internal/errs"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
)

// DrawingMiddleware 드로잉 권한 미들웨어
type DrawingMiddleware struct {
	gate     auth.Gate
	drawings repository.DrawingRepository
}

// NewDrawingMiddleware DrawingMiddleware 생성
func NewDrawingMiddleware(gate auth.Gate, drawings repository.DrawingRepository) *DrawingMiddleware {
	return &DrawingMiddleware{gate: gate, drawings: drawings}
}

// getDrawingIDFromContext URL에서 드로잉 ID 추출
func getDrawingIDFromContext(c *fiber.Ctx) (string, error) {
	// 우선순위: :drawingId > :id
	id := c.Params("drawingId")
	if id == "" {
		id = c.Params("id")
	}
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "drawing ID is required")
	}
	return id, nil
}

// PermissionFromContext RequireAccess/RequireEdit가 저장한 권한
func PermissionFromContext(c *fiber.Ctx) protocol.Permission {
	p, _ := c.Locals("permission").(protocol.Permission)
	return p
}

// RequireAccess 보기 이상 권한 필수 (소유자 또는 공유 토큰)
func (m *DrawingMiddleware) RequireAccess() fiber.Handler {
	return m.require(false)
}

// RequireEdit 편집 권한 필수
func (m *DrawingMiddleware) RequireEdit() fiber.Handler {
	return m.require(true)
}

func (m *DrawingMiddleware) require(needEdit bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		drawingID, err := getDrawingIDFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid drawing ID",
			})
		}

		dec, err := auth.Require(c.UserContext(), m.gate, auth.Request{
			DrawingID:  drawingID,
			UserID:     auth.UserIDFromContext(c),
			ShareToken: c.Query("share"),
		}, needEdit)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "drawing not found",
			})
		case errors.Is(err, errs.ErrForbidden) && needEdit:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "edit permission required",
			})
		case errors.Is(err, errs.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "no access to drawing",
			})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal error",
			})
		}

		c.Locals("drawingID", drawingID)
		c.Locals("permission", dec.Permission)
		return c.Next()
	}
}

// RequireOwnership 드로잉 소유자 필수
func (m *DrawingMiddleware) RequireOwnership() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := auth.UserIDFromContext(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		drawingID, err := getDrawingIDFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid drawing ID",
			})
		}

		d, err := m.drawings.Get(c.UserContext(), drawingID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "drawing not found",
			})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal error",
			})
		}

		if d.OwnerID != userID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "owner permission required",
			})
		}

		c.Locals("drawingID", drawingID)
		c.Locals("permission", protocol.PermissionEdit)
		return c.Next()
	}
}
