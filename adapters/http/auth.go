package http

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/utils/log"
)

const (
	JWTExpiry = 24 * time.Hour
	jwtIssuer = "gym-trainer"
)

type JWTClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks bearer tokens for API clients. With no
// client key configured every request is let through.
type Authenticator struct {
	clientKey    string
	clientSecret string
	jwtSecret    []byte
	now          func() time.Time
}

func NewAuthenticator(clientKey, clientSecret, jwtSecret string) *Authenticator {
	return &Authenticator{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		jwtSecret:    []byte(jwtSecret),
		now:          time.Now,
	}
}

func (a *Authenticator) Enabled() bool {
	return a.clientKey != ""
}

// GenerateJWT creates a JWT token for authenticated clients
func (a *Authenticator) GenerateJWT(c echo.Context) error {
	if !a.Enabled() {
		return echo.NewHTTPError(http.StatusNotFound, "Authentication is disabled")
	}

	key := c.Request().Header.Get("X-API-Key")
	secret := c.Request().Header.Get("X-API-Secret")
	if !equal(key, a.clientKey) || !equal(secret, a.clientSecret) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	token, err := a.sign(key)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("error signing JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": token,
		"type":  "Bearer",
	})
}

func (a *Authenticator) sign(clientID string) (string, error) {
	now := a.now()
	claims := &JWTClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   "chat",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// JWTMiddleware accepts "Authorization: Bearer <token>" or, for WebSocket
// handshakes from browsers, a token query parameter.
func (a *Authenticator) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.Enabled() {
			return next(c)
		}

		tokenString := c.QueryParam("token")
		if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
			}
		}
		if tokenString == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.jwtSecret, nil
		}, jwt.WithIssuer(jwtIssuer), jwt.WithTimeFunc(a.now))
		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("JWT validation error", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
			c.Set("client_id", claims.ClientID)
			return next(c)
		}

		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
	}
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
