package middleware

import (
	"net/http"

	"github.com/platinummonkey/groundwork/pkg/auth"
	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/observability"
)

// RequireProject reads the project scope from the path or the x-project-id
// header and stores it on the request context.
func RequireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID := httputil.ProjectIDFromRequest(r)
		if projectID == "" {
			httputil.WriteBadRequest(w, "project id is required")
			return
		}
		ctx := contextkeys.WithProjectID(r.Context(), projectID)
		ctx = observability.WithLogger(ctx, observability.LoggerFromContext(ctx).WithField("project_id", projectID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WebhookSecretHeader carries the shared webhook secret
const WebhookSecretHeader = "x-webhook-secret"

// RequireWebhookSecret rejects requests without the shared secret
func RequireWebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.VerifyWebhookSecret(secret, r.Header.Get(WebhookSecretHeader)) {
				httputil.WriteUnauthorized(w, "invalid webhook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
