package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/HostingCuenca/lexconnect-sub001/pkg/config"
	"github.com/HostingCuenca/lexconnect-sub001/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub       string `json:"sub"`  // user ID
	Email     string `json:"email"`
	Role      string `json:"role"` // "cliente" | "abogado" | "administrador"
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	jwt.RegisteredClaims
}

// Identity is the caller extracted from a verified bearer token.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	Role      models.Role
	FirstName string
	LastName  string
}

// TokenTTL is how long issued tokens stay valid. There is no revocation
// list: a valid, unexpired signature is honored until natural expiry.
func TokenTTL() time.Duration {
	return time.Duration(config.GetIntEnv("JWT_TTL_HOURS", 7*24)) * time.Hour
}

func secret() []byte {
	return []byte(config.GetEnv("JWT_SECRET", ""))
}

/* ============================== JWT Helpers ============================= */

// IssueToken signs a JWT for the given user.
func IssueToken(u *models.User) (string, error) {
	claims := &Claims{
		Sub:       u.ID.String(),
		Email:     u.Email,
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL())),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret())
}

// ParseToken verifies signature and expiry and returns the claims.
func ParseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return secret(), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects the caller identity into
// the context. Any failure (missing header, malformed, expired, bad
// signature) yields 401.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", claims.Sub)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)
		c.Locals("firstName", claims.FirstName)
		c.Locals("lastName", claims.LastName)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// MustIdentity assembles the full caller identity from context locals.
func MustIdentity(c *fiber.Ctx) Identity {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		panic(err)
	}
	str := func(key string) string {
		if v := c.Locals(key); v != nil {
			return v.(string)
		}
		return ""
	}
	return Identity{
		UserID:    id,
		Email:     str("email"),
		Role:      models.Role(MustRole(c)),
		FirstName: str("firstName"),
		LastName:  str("lastName"),
	}
}

// RequireRole ensures the authenticated user has the expected role.
func RequireRole(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if MustRole(c) != string(role) {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is the global Fiber error handler; every error becomes the
// {success:false, message, code} envelope. Internal error details are only
// passed through outside production.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if strings.TrimSpace(e.Message) != "" {
			msg = e.Message
		} else {
			msg = fiber.ErrInternalServerError.Message
			switch code {
			case fiber.StatusBadRequest:
				msg = fiber.ErrBadRequest.Message
			case fiber.StatusUnauthorized:
				msg = fiber.ErrUnauthorized.Message
			case fiber.StatusForbidden:
				msg = fiber.ErrForbidden.Message
			case fiber.StatusNotFound:
				msg = fiber.ErrNotFound.Message
			case fiber.StatusConflict:
				msg = fiber.ErrConflict.Message
			case fiber.StatusTooManyRequests:
				msg = fiber.ErrTooManyRequests.Message
			}
		}
	} else if err != nil && !config.IsProduction() {
		msg = err.Error()
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Success: false,
		Code:    httpCodeToString(code),
		Message: msg,
	})
}
