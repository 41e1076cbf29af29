// Package auth issues and validates connection tokens. A token's conn_id
// claim is the caller identity used to look up share credentials.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Harshal1803/Raspberry-NAS-Server/internal/logging"
)

type contextKey string

const claimsContextKey contextKey = "claims"

const issuer = "raspberry-nas"

// Claims holds connection token claims.
type Claims struct {
	ConnectionID string `json:"conn_id"`
	Username     string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Auth signs and verifies HS256 connection tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates an Auth with the given signing secret and token lifetime.
func New(secret string, ttl time.Duration) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for a connection and its expiry.
func (a *Auth) Issue(connectionID, username string) (string, time.Time, error) {
	if connectionID == "" {
		return "", time.Time{}, errors.New("connection id required")
	}
	now := a.now()
	claims := &Claims{
		ConnectionID: connectionID,
		Username:     username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			sendAuthError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		claims, err := a.Validate(tokenStr)
		if err != nil {
			logging.WithContext(r.Context()).Debug("rejected token", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		ctx = logging.WithConnection(ctx, claims.ConnectionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// Validate parses tokenStr and checks its signature, expiry and issuer.
func (a *Auth) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.ConnectionID == "" {
		return nil, fmt.Errorf("token has no connection")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
