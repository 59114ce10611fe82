package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guildledger/backend/internal/services"
)

type contextKey string

const actorKey contextKey = "actorID"

// ActorFromContext returns the account id the gateway acted for.
func ActorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey).(string)
	return id, ok && id != ""
}

// WithActor stores the acting account id on ctx.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// Auth validates the gateway bearer token and puts its user_id claim on the request context.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			userID, err := validateToken(parts[1], key)
			if err != nil {
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), userID)))
		})
	}
}

var errMissingUserID = errors.New("token has no user_id claim")

func validateToken(tokenString string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithJSONNumber())
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	// Discord ids overflow float64, so numbers are kept as their literal text
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case interface{ String() string }:
		return v.String(), nil
	}
	return "", errMissingUserID
}

// GenerateToken signs a gateway token acting for userID.
func GenerateToken(secret, userID string, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(expiry).Unix(),
	})
	return token.SignedString([]byte(secret))
}
