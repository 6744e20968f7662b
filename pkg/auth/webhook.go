package auth

import "crypto/subtle"

// VerifyWebhookSecret compares the presented secret with the configured one
// in constant time. An unconfigured secret rejects everything.
func VerifyWebhookSecret(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
