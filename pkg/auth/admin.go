package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/lazy"
	"golang.org/x/oauth2/clientcredentials"
)

// AdminClient creates users at the identity provider
type AdminClient struct {
	baseURL string
	client  *lazy.Value[*http.Client]
}

// NewAdminClient creates an admin client from a service account
func NewAdminClient(sa *config.ServiceAccount) *AdminClient {
	cc := &clientcredentials.Config{
		ClientID:     sa.ClientID,
		ClientSecret: sa.ClientSecret,
		TokenURL:     sa.TokenURL,
		Scopes:       sa.Scopes,
	}
	return &AdminClient{
		baseURL: strings.TrimRight(sa.AdminURL, "/"),
		client: lazy.New("idp admin client", func(ctx context.Context) (*http.Client, error) {
			// The token source refreshes with this context, so it must not
			// be tied to a single request.
			return cc.Client(context.WithoutCancel(ctx)), nil
		}),
	}
}

type adminUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ProvisionUser creates the account, or returns the existing one's id when
// the provider already knows the email.
func (c *AdminClient) ProvisionUser(ctx context.Context, email, name string) (string, error) {
	client, err := c.client.Get(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(adminUser{Email: email, Name: name})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create identity provider user: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var created adminUser
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", fmt.Errorf("failed to decode identity provider user: %w", err)
		}
		if created.ID == "" {
			return "", fmt.Errorf("identity provider returned a user without id")
		}
		return created.ID, nil
	case http.StatusConflict:
		return c.findUser(ctx, client, email)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

func (c *AdminClient) findUser(ctx context.Context, client *http.Client, email string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users?email="+url.QueryEscape(email), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to look up identity provider user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity provider lookup returned %d", resp.StatusCode)
	}
	var users []adminUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return "", fmt.Errorf("failed to decode identity provider users: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) && u.ID != "" {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("identity provider reported a conflict but has no user %s", email)
}
