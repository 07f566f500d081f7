package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// tokenFromRequest Authorization 헤더 > access_token 쿠키 > token 쿼리 순
func tokenFromRequest(c *fiber.Ctx) (string, bool) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", false
		}
		return parts[1], true
	}
	if cookie := c.Cookies("access_token"); cookie != "" {
		return cookie, true
	}
	// 브라우저 WebSocket은 헤더를 못 붙이므로 쿼리 허용
	if q := c.Query("token"); q != "" {
		return q, true
	}
	return "", true
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := tokenFromRequest(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := tokenFromRequest(c); ok && token != "" {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		return c.Next()
	}
}

// UserIDFromContext 인증된 사용자 ID (없으면 0)
func UserIDFromContext(c *fiber.Ctx) int64 {
	if id, ok := c.Locals("userID").(int64); ok {
		return id
	}
	return 0
}

func setClaims(c *fiber.Ctx, claims *Claims) {
	c.Locals("userID", claims.UserID)
	c.Locals("nickname", claims.Nickname)
	c.Locals("claims", claims)
}
