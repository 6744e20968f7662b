// Package api serves the project management HTTP API.
//
// Routes live under /api. Every project scoped route runs behind the
// authenticator and the rbac module check, then receives repositories
// bound to the request's security context. Mutations are audited after
// they commit.
//
// Vendor portals post bids to /api/webhooks/bids with the shared secret in
// x-webhook-secret and the project in x-project-id.
package api
