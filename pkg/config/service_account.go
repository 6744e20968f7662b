package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceAccount is the identity provider admin credential used to provision
// invited users.
type ServiceAccount struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	AdminURL     string   `json:"admin_url"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Validate checks that the credential can obtain a token
func (s *ServiceAccount) Validate() error {
	var missing []string
	if s.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if s.TokenURL == "" {
		missing = append(missing, "token_url")
	}
	if s.AdminURL == "" {
		missing = append(missing, "admin_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("service account missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadServiceAccount builds the admin credential from either a JSON blob
// (raw or base64 encoded) or individual fields. The blob wins when both are
// present. Returns nil, nil when nothing is configured.
func LoadServiceAccount(blob, clientID, clientSecret, tokenURL, adminURL string) (*ServiceAccount, error) {
	blob = strings.TrimSpace(blob)
	if blob != "" {
		sa, err := decodeServiceAccount(blob)
		if err != nil {
			return nil, err
		}
		if sa.ClientID == "" {
			sa.ClientID = clientID
		}
		if sa.AdminURL == "" {
			sa.AdminURL = adminURL
		}
		if err := sa.Validate(); err != nil {
			return nil, err
		}
		return sa, nil
	}

	if clientSecret == "" && tokenURL == "" && adminURL == "" {
		return nil, nil
	}

	sa := &ServiceAccount{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AdminURL:     adminURL,
	}
	if err := sa.Validate(); err != nil {
		return nil, err
	}
	return sa, nil
}

func decodeServiceAccount(blob string) (*ServiceAccount, error) {
	raw := []byte(blob)
	if !strings.HasPrefix(blob, "{") {
		decoded, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(blob)
			if err != nil {
				return nil, fmt.Errorf("service account is neither JSON nor base64: %w", err)
			}
		}
		raw = decoded
	}

	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	return &sa, nil
}
