package api

import (
	"database/sql"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/auth"
	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/middleware"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/platinummonkey/groundwork/pkg/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIPrefix is the path prefix of every authenticated route
const APIPrefix = "/api"

// Deps are the collaborators of a Server. DB, Engine, Projects, Verifier
// and Logger are required.
type Deps struct {
	DB       *sql.DB
	Engine   *rbac.Engine
	Projects *projects.Service
	Audit    audit.Logger
	Verifier auth.TokenVerifier

	// RateLimit is nil when rate limiting is disabled.
	RateLimit *middleware.RateLimitMiddleware
	// Documents is nil when object storage is not configured; presign
	// routes then answer 503.
	Documents storage.DocumentStore
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Logger    logrus.FieldLogger

	Server        config.ServerConfig
	WebhookSecret string
	Tracing       bool

	// Clock overrides repository timestamps in tests.
	Clock func() time.Time
}

// Server serves the project management API
type Server struct {
	conn       *sql.DB
	engine     *rbac.Engine
	projects   *projects.Service
	audit      audit.Logger
	auditStore *audit.Store
	documents  storage.DocumentStore
	deps       Deps
	logger     logrus.FieldLogger
	repoOpts   []repository.Option
}

// NewServer creates a Server from deps
func NewServer(deps Deps) *Server {
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	s := &Server{
		conn:       deps.DB,
		engine:     deps.Engine,
		projects:   deps.Projects,
		audit:      auditLogger,
		auditStore: audit.NewStore(deps.DB),
		documents:  deps.Documents,
		deps:       deps,
		logger:     deps.Logger.WithField("component", "api"),
	}
	if deps.Clock != nil {
		s.repoOpts = append(s.repoOpts, repository.WithClock(deps.Clock))
	}
	return s
}

// Handler builds the routed and fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, apperr.NotFound("Route"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	if s.deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
		router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	if s.deps.Health != nil {
		router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods(http.MethodGet)
		router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods(http.MethodGet)
	}

	hooks := router.PathPrefix(APIPrefix + "/webhooks").Subrouter()
	hooks.Use(middleware.RequireWebhookSecret(s.deps.WebhookSecret), middleware.RequireProject)
	s.registerWebhookRoutes(hooks)

	api := router.PathPrefix(APIPrefix).Subrouter()
	api.Use(middleware.NewAuthenticator(s.deps.Verifier, s.projects, s.logger).Handler)
	if s.deps.RateLimit != nil {
		api.Use(s.deps.RateLimit.Handler)
	}
	s.registerUserRoutes(api)
	s.registerAdminRoutes(api)
	s.registerProjectRoutes(api)
	s.registerTaskRoutes(api)
	s.registerBudgetRoutes(api)
	s.registerScheduleRoutes(api)
	s.registerContactRoutes(api)
	s.registerProcurementRoutes(api)
	s.registerBiddingRoutes(api)
	s.registerInvoiceRoutes(api)
	s.registerDocumentRoutes(api)

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware,
	}
	if s.deps.Server.AppURL != "" {
		chain = append(chain, httputil.CORSMiddleware([]string{s.deps.Server.AppURL}))
	}
	if s.deps.Server.RequestTimeout > 0 {
		chain = append(chain, httputil.TimeoutMiddleware(s.deps.Server.RequestTimeout))
	}
	if s.deps.Server.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(s.deps.Server.MaxBodyBytes))
	}
	handler := httputil.Chain(chain...)(router)
	if s.deps.Tracing {
		handler = otelhttp.NewHandler(handler, "groundwork")
	}
	return handler
}

// scopedFunc handles a request with repositories bound to its security context
type scopedFunc func(w http.ResponseWriter, r *http.Request, repos *repository.Repositories)

// module authorizes module access and hands the handler scoped repositories
func (s *Server) module(module rbac.Module, action rbac.Action, h scopedFunc) http.Handler {
	return s.engine.RequireModule(module, action)(s.scoped(h))
}

// anyModule is module for routes accepting any one of several actions
func (s *Server) anyModule(module rbac.Module, h scopedFunc, actions ...rbac.Action) http.Handler {
	return s.engine.RequireAnyModule(module, actions...)(s.scoped(h))
}

func (s *Server) scoped(h scopedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, _ := rbac.SecurityContextFrom(r.Context())
		repos, err := repository.New(s.conn, sc, s.repoOpts...)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		h(w, r, repos)
	})
}

// record writes the audit entry of a mutation. Failures are logged and do
// not fail the request, which has already committed.
func (s *Server) record(r *http.Request, sc *rbac.SecurityContext, action, entity, entityID string, metadata map[string]interface{}) {
	entry := audit.Entry{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Metadata: metadata,
	}
	if sc != nil {
		entry.UserID = sc.UserID()
		entry.ProjectID = sc.ProjectID()
	}
	if err := s.audit.Log(r.Context(), entry); err != nil {
		observability.LoggerFromContext(r.Context()).WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entity,
		}).Warn("Failed to write audit entry")
	}
}

// listPage parses ?page=&limit= into the response and query forms
func listPage(r *http.Request) (httputil.PageRequest, repository.Page, error) {
	req, err := httputil.ParsePage(r)
	if err != nil {
		return req, repository.Page{}, err
	}
	return req, repository.Page{Limit: req.Limit, Offset: int(req.Offset())}, nil
}

// pathID reads a required path variable
func pathID(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	id, err := httputil.PathParam(r, key)
	if err != nil {
		httputil.WriteError(w, r, err)
		return "", false
	}
	return id, true
}

// decode parses and validates the request body, writing the error itself
func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.DecodeAndValidate(r, dest); err != nil {
		httputil.WriteError(w, r, err)
		return false
	}
	return true
}

// currentUser returns the authenticated user
func currentUser(w http.ResponseWriter, r *http.Request) (*projects.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperr.Unauthenticated("Authentication required"))
		return nil, false
	}
	return user, true
}

// securityContext returns the context stored by the rbac middleware
func securityContext(r *http.Request) *rbac.SecurityContext {
	sc, _ := rbac.SecurityContextFrom(r.Context())
	return sc
}

// fieldNames lists the changed columns for audit metadata
func fieldNames(changes map[string]interface{}) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
