// Package middleware provides HTTP middleware for authentication, project
// scope, webhooks and rate limiting.
//
// # Middleware Components
//
// Authenticator: bearer token authentication
//
//	authn := middleware.NewAuthenticator(verifier, projectService, logger)
//	router.Use(authn.Handler)
//	// Verifies the token, resolves or creates the local user, rejects
//	// inactive users and stores the user id on the request context.
//
// RequireSystemRole: admin only routes
//
//	admin.Use(middleware.RequireSystemRole(rbac.SystemRoleAdmin))
//
// RequireProject / RequireWebhookSecret: unauthenticated webhook routes
//
//	hooks.Use(middleware.RequireWebhookSecret(cfg.Webhook.Secret), middleware.RequireProject)
//
// RateLimitMiddleware: per user sliding window limits by rate limit tier
//
//	limiter := middleware.NewMemoryLimiter(time.Minute)       // single instance
//	limiter := middleware.NewRedisLimiter(redisClient, time.Minute) // shared
//	router.Use(middleware.NewRateLimitMiddleware(limiter, engine, metrics, logger).Handler)
//
// # Ordering
//
// Rate limiting keys on the user id, so it must run after Authenticator.
// Anonymous requests are keyed by client address at the low tier.
//
// # Rate Limiting
//
// high: 600 req/window
// standard: 300 req/window
// low: 120 req/window
//
// The Redis limiter fails open: backend errors are counted and logged and
// the request is allowed.
package middleware
