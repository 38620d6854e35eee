package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tutaviendo/storefront/pkg/models"
)

// tokenIssuer is the iss claim of dashboard tokens.
const tokenIssuer = "tutaviendo-storefront"

var errMissingToken = errors.New("missing bearer token")

// IssueToken signs an HS256 dashboard token for subject. A non-empty storeID
// restricts the token to that store.
func IssueToken(secret, subject, storeID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": tokenIssuer,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if storeID != "" {
		claims["store_id"] = storeID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if auth == "" || token == auth || token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func (h *Handler) parseToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// authMiddleware checks the dashboard bearer token when a secret is
// configured. Store-scoped tokens only open their own store.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.jwtSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := h.parseToken(raw)
		if err != nil {
			h.logger.Log(models.LogLevelWARN, "Rejected dashboard token", map[string]interface{}{
				"error": err.Error(),
				"path":  r.URL.Path,
			})
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if scoped, ok := claims["store_id"].(string); ok && scoped != "" {
			store, err := h.stores.FindStore(storeKey(r))
			if err != nil || store.ID != scoped {
				writeError(w, http.StatusForbidden, "token not valid for this store")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
