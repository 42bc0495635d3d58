package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// StaffSubjectHeader carries the authenticated staff subject upstream.
const StaffSubjectHeader = "X-Staff-Subject"

const staffRole = "staff"

type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth accepts HS256 bearer tokens whose role claim is "staff".
type StaffAuth struct {
	secret []byte
	logger *slog.Logger
}

func NewStaffAuth(secret string, logger *slog.Logger) *StaffAuth {
	return &StaffAuth{secret: []byte(secret), logger: logger}
}

func (a *StaffAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never trust a subject header sent by the client.
		r.Header.Del(StaffSubjectHeader)

		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token", a.logger)
			return
		}

		claims, err := a.parse(strings.TrimSpace(token))
		if err != nil {
			a.logger.Warn("staff token rejected", "error", err, "path", r.URL.Path)
			writeJSONError(w, http.StatusUnauthorized, "invalid token", a.logger)
			return
		}
		if claims.Role != staffRole {
			writeJSONError(w, http.StatusForbidden, "staff role required", a.logger)
			return
		}

		r.Header.Set(StaffSubjectHeader, claims.Subject)
		next.ServeHTTP(w, r)
	})
}

func (a *StaffAuth) parse(token string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}
