package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"

	RoleAdmin = "admin"
)

// Protected verifies the bearer token. jwtware stores the parsed token under "user".
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if strings.EqualFold(err.Error(), "missing or malformed jwt") {
		return apperrors.Unauthenticated("missing or malformed JWT")
	}
	return apperrors.Unauthenticated("invalid or expired JWT")
}

func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := tokenClaims(c)
		if !ok {
			return apperrors.Unauthenticated("missing or malformed JWT")
		}
		if role, _ := claims["role"].(string); role != RoleAdmin {
			return apperrors.Forbidden("admin access required")
		}
		return c.Next()
	}
}

// UserID returns the authenticated user. Protected must run first.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	if id, ok := c.Locals(LocalUserID).(uuid.UUID); ok {
		return id, nil
	}
	claims, ok := tokenClaims(c)
	if !ok {
		return uuid.Nil, apperrors.Unauthenticated("missing or malformed JWT")
	}
	return userIDClaim(claims)
}

func tokenClaims(c *fiber.Ctx) (jwt.MapClaims, bool) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	return claims, ok
}

func userIDClaim(claims jwt.MapClaims) (uuid.UUID, error) {
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Unauthenticated("token carries no valid user id")
	}
	return id, nil
}

func ParseToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// IssueToken signs an HS256 token with the claims this service reads.
func IssueToken(secret string, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// WebSocketAuth authenticates the handshake before the upgrade. The token comes from the
// Authorization header or, for browsers, the token query parameter.
func WebSocketAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		raw := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			return apperrors.Unauthenticated("missing or malformed JWT")
		}

		claims, err := ParseToken(raw, secret)
		if err != nil {
			return apperrors.Unauthenticated("invalid or expired JWT")
		}
		userID, err := userIDClaim(claims)
		if err != nil {
			return err
		}
		role, _ := claims["role"].(string)

		c.Locals(LocalUserID, userID)
		c.Locals(LocalRole, role)
		return c.Next()
	}
}
