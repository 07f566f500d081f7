package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"drawboard/internal/errs"
	"drawboard/internal/protocol"
)

const issuer = "drawboard-api"

var (
	ErrInvalidToken = errs.ErrInvalidToken
	ErrExpiredToken = errors.New("token has expired")
)

// Claims 액세스 토큰 클레임
type Claims struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// ShareClaims 드로잉 공유 토큰 클레임
type ShareClaims struct {
	DrawingID  string              `json:"drawing_id"`
	Permission protocol.Permission `json:"permission"`
	jwt.RegisteredClaims
}

// JWTManager JWT 토큰 관리자
type JWTManager struct {
	secretKey    []byte
	accessExpiry time.Duration
	shareExpiry  time.Duration
}

// NewJWTManager JWTManager 생성
func NewJWTManager(secretKey string, accessExpiry, shareExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:    []byte(secretKey),
		accessExpiry: accessExpiry,
		shareExpiry:  shareExpiry,
	}
}

// GenerateAccessToken 액세스 토큰 생성
func (m *JWTManager) GenerateAccessToken(userID int64, nickname string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Nickname: nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateAccessToken 액세스 토큰 검증
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateShareToken 공유 링크용 토큰 생성
func (m *JWTManager) GenerateShareToken(drawingID string, perm protocol.Permission) (string, error) {
	if drawingID == "" || !perm.Valid() {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := &ShareClaims{
		DrawingID:  drawingID,
		Permission: perm,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.shareExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   "share:" + drawingID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateShareToken 공유 토큰 검증
func (m *JWTManager) ValidateShareToken(tokenString string) (*ShareClaims, error) {
	claims := &ShareClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.DrawingID == "" || !claims.Permission.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
