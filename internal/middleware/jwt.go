package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidJWT = errors.New("invalid token")
	ErrExpiredJWT = errors.New("token expired")
)

// JWTConfig holds JWT middleware configuration.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// Enabled reports whether requests must carry a token.
func (c JWTConfig) Enabled() bool { return c.Secret != "" }

// Claims represents the JWT payload. Subject identifies the caller.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Caller is the identity attached to an authenticated request.
type Caller struct {
	Subject string
	Name    string
}

// JWTMiddleware validates bearer tokens and stores the Caller in locals.
// With an empty secret the API is open and every request passes.
func JWTMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !cfg.Enabled() {
			return c.Next()
		}

		// Authorization header first, then ?token=
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization",
			})
		}

		claims, err := ValidateJWT(token, cfg)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("caller", &Caller{Subject: claims.Subject, Name: claims.Name})
		return c.Next()
	}
}

// bearerToken returns the token of a "Bearer <token>" header value.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetCaller extracts the Caller from Fiber locals.
func GetCaller(c fiber.Ctx) *Caller {
	u, ok := c.Locals("caller").(*Caller)
	if !ok {
		return nil
	}
	return u
}

// GenerateJWT signs a token for subject. Used by the CLI to mint API tokens.
func GenerateJWT(subject, name string, cfg JWTConfig) (string, error) {
	now := time.Now()
	expires := cfg.ExpiresIn
	if expires <= 0 {
		expires = 24 * time.Hour
	}
	claims := &Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expires)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// ValidateJWT checks signature, expiry and issuer.
func ValidateJWT(tokenStr string, cfg JWTConfig) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredJWT
		}
		return nil, ErrInvalidJWT
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidJWT
}
