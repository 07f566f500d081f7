package auth

import (
	"context"
	"errors"

	"drawboard/internal/errs"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
)

// Request 드로잉 접근 요청 (사용자 ID와 공유 토큰 중 하나 이상)
type Request struct {
	DrawingID  string
	UserID     int64
	ShareToken string
}

// Decision 접근 판정 결과
type Decision struct {
	Permitted  bool
	Permission protocol.Permission
}

// Gate decides who may join and edit a drawing.
type Gate interface {
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// DrawingGate 소유자 또는 공유 토큰 기반 권한 판정
type DrawingGate struct {
	drawings repository.DrawingRepository
	jwt      *JWTManager
}

var _ Gate = (*DrawingGate)(nil)

// NewDrawingGate DrawingGate 생성
func NewDrawingGate(drawings repository.DrawingRepository, jwtManager *JWTManager) *DrawingGate {
	return &DrawingGate{drawings: drawings, jwt: jwtManager}
}

// Authorize returns edit for the owner, the token's permission for a valid
// share token scoped to this drawing, and not-permitted otherwise.
// A missing drawing yields errs.ErrNotFound.
func (g *DrawingGate) Authorize(ctx context.Context, req Request) (Decision, error) {
	d, err := g.drawings.Get(ctx, req.DrawingID)
	if err != nil {
		return Decision{}, err
	}

	if req.UserID != 0 && d.OwnerID == req.UserID {
		return Decision{Permitted: true, Permission: protocol.PermissionEdit}, nil
	}

	if req.ShareToken != "" {
		claims, err := g.jwt.ValidateShareToken(req.ShareToken)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrInvalidToken) {
				return Decision{}, nil
			}
			return Decision{}, err
		}
		if claims.DrawingID == d.ID {
			return Decision{Permitted: true, Permission: claims.Permission}, nil
		}
	}

	return Decision{}, nil
}

// Require is Authorize followed by a check for the wanted capability.
// It returns errs.ErrForbidden when the caller is not permitted or lacks edit.
func Require(ctx context.Context, g Gate, req Request, needEdit bool) (Decision, error) {
	dec, err := g.Authorize(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	if !dec.Permitted || (needEdit && !dec.Permission.CanEdit()) {
		return dec, errs.ErrForbidden
	}
	return dec, nil
}
