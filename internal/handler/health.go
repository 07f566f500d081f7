package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CheckFunc 컴포넌트 상태 확인 함수
type CheckFunc func(ctx context.Context) error

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	checks map[string]CheckFunc
}

// NewHealthHandler HealthHandler 생성 (database, redis 등)
func NewHealthHandler(checks map[string]CheckFunc) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Register mounts /health, /health/live and /health/ready.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Check)
	router.Get("/health/live", h.Liveness)
	router.Get("/health/ready", h.Readiness)
}

func (h *HealthHandler) run(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = ComponentCheck{Status: "unhealthy", Error: err.Error()}
			continue
		}
		response.Checks[name] = ComponentCheck{Status: "healthy", Latency: time.Since(start).String()}
	}
	return response
}

// Check 전체 상태 확인
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := h.run(c.UserContext())

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (의존성 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if h.run(c.UserContext()).Status != "healthy" {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
