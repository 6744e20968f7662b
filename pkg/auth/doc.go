// Package auth resolves bearer tokens to identities and talks to the
// identity provider.
//
// # Overview
//
// OIDCVerifier checks ID tokens against the provider's published keys.
// The provider is discovered on first use through a lazy value, so the
// server can start while the provider is unreachable. CachingVerifier keeps
// recently verified tokens in an expiring LRU keyed by the token's hash.
//
// AdminClient uses a client credentials grant to create accounts at the
// provider when a project manager invites somebody who has never logged in.
// It implements projects.Provisioner.
//
// # Usage Example
//
//	verifier := auth.NewCachingVerifier(auth.NewOIDCVerifier(issuer, clientID), 10000, 2*time.Minute)
//	identity, err := verifier.Verify(ctx, rawToken)
//
// # Webhooks
//
// Inbound webhooks carry a shared secret that VerifyWebhookSecret compares
// in constant time.
package auth
