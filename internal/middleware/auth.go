package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/aurumif/sales-ledger/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

var sessionRedis *redis.Client

// InitAuthMiddleware wires the redis client used for the token
// revocation list. A nil client disables revocation checks.
func InitAuthMiddleware(rdb *redis.Client) {
	sessionRedis = rdb
}

// IdentityFrom extracts the authenticated identity placed in the request
// context by AuthMiddleware.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// WithIdentity returns a context carrying the given identity. Used by
// tests to exercise handlers without the full middleware chain.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "Invalid authorization header format")
			return
		}

		token := parts[1]

		if sessionRedis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			if exists, err := sessionRedis.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
				unauthorized(w, "Token revoked")
				return
			}
		}

		identity, err := validateToken(token)
		if err != nil {
			log.Printf("[AUTH] Token rejected: %v", err)
			unauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly gates a route on the admin group claim. Must run after
// AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			unauthorized(w, "Authentication required")
			return
		}
		if !identity.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{
				"kind":  "authorization",
				"error": "Admin group membership required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateToken parses the JWT and projects its claims into a narrow
// Identity. Unexpected claim shapes are rejected rather than indexed
// into speculatively.
func validateToken(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil {
		return models.Identity{}, err
	}
	if !token.Valid {
		return models.Identity{}, fmt.Errorf("token invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Identity{}, fmt.Errorf("missing sub claim")
	}

	identity := models.Identity{Subject: sub}
	if username, ok := claims["username"].(string); ok {
		identity.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if rawGroups, ok := claims["groups"].([]interface{}); ok {
		for _, g := range rawGroups {
			s, ok := g.(string)
			if !ok {
				return models.Identity{}, fmt.Errorf("non-string group claim %v", g)
			}
			identity.Groups = append(identity.Groups, s)
		}
	}

	return identity, nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"kind":  "authorization",
		"error": message,
	})
}
