package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification errors
var (
	// ErrTokenInvalid indicates a malformed token or bad signature
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrTokenExpired indicates a well-formed token past its expiry
	ErrTokenExpired = errors.New("token is expired")
)

// Назначение токена, хранится в claim token_use
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims представляет JWT claims приложения
type Claims struct {
	TokenUse string `json:"token_use"` // "access" или "refresh"
	jwt.RegisteredClaims
}

// Service issues and verifies signed access and refresh tokens.
// The service is stateless: all trust derives from the shared HS256 secret.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates a token service.
// secret should be a cryptographically secure random string.
func NewService(secret, issuer string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccessToken creates a short-lived access token carrying sub = userID.
// Returns the signed token and its expiry time.
func (s *Service) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.issue(userID, useAccess, s.accessTTL)
}

// IssueRefreshToken creates a long-lived refresh token carrying sub = userID
// and the issuance timestamp. A unique jti guarantees that two tokens issued
// within the same second still differ.
func (s *Service) IssueRefreshToken(userID string) (string, time.Time, error) {
	return s.issue(userID, useRefresh, s.refreshTTL)
}

func (s *Service) issue(userID, use string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", use, err)
	}

	return signed, expiresAt, nil
}

// VerifyAccessToken validates an access token and returns its claims.
func (s *Service) VerifyAccessToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, useAccess)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
// Returns ErrTokenExpired for expired tokens and ErrTokenInvalid for
// everything else (bad signature, malformed payload, wrong token_use).
func (s *Service) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return s.verify(tokenString, useRefresh)
}

func (s *Service) verify(tokenString, use string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Принимаем только HMAC, чтобы исключить подмену алгоритма
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != use {
		return nil, fmt.Errorf("%w: wrong token use %q", ErrTokenInvalid, claims.TokenUse)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

// DecodeRefreshToken разбирает refresh token без проверки подписи.
// Только для инспекции и диагностики, НЕ для принятия решений о доверии.
func (s *Service) DecodeRefreshToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
