package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/auth"
	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// UserResolver maps a verified identity to the local user
type UserResolver interface {
	EnsureUser(ctx context.Context, identity projects.Identity) (*projects.User, error)
}

// Authenticator authenticates requests with bearer tokens
type Authenticator struct {
	verifier auth.TokenVerifier
	users    UserResolver
	logger   logrus.FieldLogger
}

// NewAuthenticator creates a new authentication middleware
func NewAuthenticator(verifier auth.TokenVerifier, users UserResolver, logger logrus.FieldLogger) *Authenticator {
	return &Authenticator{verifier: verifier, users: users, logger: logger}
}

// Handler wraps an HTTP handler with authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := httputil.BearerToken(r)
		if err != nil {
			httputil.WriteUnauthorized(w, err.Error())
			return
		}

		identity, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			if _, ok := apperr.As(err); !ok {
				a.logger.WithError(err).Error("Token verification failed")
			}
			httputil.WriteError(w, r, err)
			return
		}

		user, err := a.users.EnsureUser(r.Context(), *identity)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if !user.IsActive {
			httputil.WriteForbidden(w, "User is inactive")
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), user.ID)
		ctx = contextkeys.WithIdentity(ctx, user)
		logger := observability.LoggerFromContext(ctx).WithField("user_id", user.ID)
		ctx = observability.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user
func UserFromContext(ctx context.Context) (*projects.User, bool) {
	user, ok := ctx.Value(contextkeys.IdentityKey).(*projects.User)
	return user, ok && user != nil
}

// RequireSystemRole allows only users holding one of roles
func RequireSystemRole(roles ...rbac.SystemRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			for _, role := range roles {
				if user.SystemRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httputil.WriteForbidden(w, "insufficient role permissions")
		})
	}
}
