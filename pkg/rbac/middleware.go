package rbac

import (
	"net/http"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/contextkeys"
	"github.com/platinummonkey/groundwork/pkg/httputil"
)

// RequireModule authorizes the caller for action on module in the request's
// project and stores the resulting SecurityContext in the request context.
// It must run after authentication.
func (e *Engine) RequireModule(module Module, action Action) func(http.Handler) http.Handler {
	return e.RequireAnyModule(module, action)
}

// RequireAnyModule is RequireModule for routes that accept any one of
// several actions, such as schedule requests that need request or write.
// The first granted action is logged; with none granted the last one is.
func (e *Engine) RequireAnyModule(module Module, actions ...Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, projectID, ok := scopeIDs(w, r)
			if !ok {
				return
			}

			action := actions[len(actions)-1]
			for _, candidate := range actions[:len(actions)-1] {
				err := e.AssertModuleAccess(r.Context(), userID, projectID, module, candidate)
				if err == nil {
					action = candidate
					break
				}
				if !apperr.Is(err, apperr.KindAuthorization) {
					httputil.WriteError(w, r, err)
					return
				}
			}

			if err := e.Authorize(r.Context(), userID, projectID, module, action); err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			e.serveScoped(w, r, next, userID, projectID)
		})
	}
}

// RequireMember builds the SecurityContext without a module check. Routes
// about the project itself, such as reading its settings, use it and leave
// finer checks to the handler.
func (e *Engine) RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, projectID, ok := scopeIDs(w, r)
		if !ok {
			return
		}
		e.serveScoped(w, r, next, userID, projectID)
	})
}

func (e *Engine) serveScoped(w http.ResponseWriter, r *http.Request, next http.Handler, userID, projectID string) {
	sc, err := e.CreateSecurityContext(r.Context(), userID, projectID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	ctx := contextkeys.WithProjectID(r.Context(), projectID)
	next.ServeHTTP(w, r.WithContext(WithSecurityContext(ctx, sc)))
}

func scopeIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperr.Unauthenticated("Authentication required"))
		return "", "", false
	}
	projectID := httputil.ProjectIDFromRequest(r)
	if projectID == "" {
		httputil.WriteError(w, r, apperr.Validation("Project id is required", map[string]string{"projectId": "is required"}))
		return "", "", false
	}
	return userID, projectID, true
}
