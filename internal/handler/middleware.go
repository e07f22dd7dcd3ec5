package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/fleetpay-go/internal/domain"
)

type contextKey string

const principalKey contextKey = "principal"

// Roles carried in the token's "role" claim.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

// Claims are the fields read from an externally issued HS256 token. A
// supervisor token names its code in "supervisorCode", or in "sub".
type Claims struct {
	Role           string `json:"role"`
	SupervisorCode string `json:"supervisorCode,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Role           string
	SupervisorCode string
}

// IsAdmin reports whether the caller may read every supervisor and write.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// JWTAuthMiddleware validates Bearer tokens and injects the principal into
// the context. With an empty secret every request runs as admin.
func JWTAuthMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				ctx := context.WithValue(r.Context(), principalKey, Principal{Role: RoleAdmin})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &Claims{}
			_, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			p, err := principalFromClaims(claims)
			if err != nil {
				logger.Warn("auth: unusable claims", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromClaims(c *Claims) (Principal, error) {
	switch strings.ToLower(strings.TrimSpace(c.Role)) {
	case RoleAdmin:
		return Principal{Role: RoleAdmin}, nil
	case RoleSupervisor:
		code := strings.TrimSpace(c.SupervisorCode)
		if code == "" {
			code = strings.TrimSpace(c.Subject)
		}
		if code == "" {
			return Principal{}, errors.New("supervisor token carries no supervisor code")
		}
		return Principal{Role: RoleSupervisor, SupervisorCode: code}, nil
	}
	return Principal{}, errors.New("token carries no known role")
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).IsAdmin() {
				handleServiceError(w, &domain.ErrForbidden{Action: "admin operation"}, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext extracts the authenticated caller from context.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

// authorizeSupervisor allows admins and the supervisor owning code.
func authorizeSupervisor(ctx context.Context, code string) error {
	p := PrincipalFromContext(ctx)
	if p.IsAdmin() {
		return nil
	}
	if p.Role == RoleSupervisor && p.SupervisorCode == strings.TrimSpace(code) {
		return nil
	}
	return &domain.ErrForbidden{Action: "read supervisor " + code}
}
