package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StoreConnector = (*Connector)(nil)

// Connector builds Clients for a fixed repository and branch once a token
// has been validated.
type Connector struct {
	Owner  string
	Repo   string
	Branch string
}

// Backend names the store kind Connector produces.
func (c *Connector) Backend() string { return "github" }

// Connect validates token, confirms the repository is reachable and returns a
// Client using it.
func (c *Connector) Connect(ctx context.Context, token string) (driven.DocumentStore, string, error) {
	client := NewClient(token, c.Owner, c.Repo, c.Branch)
	login, err := client.Login(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := client.CheckAccess(ctx); err != nil {
		return nil, "", err
	}
	return client, login, nil
}

// Login returns the username the client's token belongs to. A token GitHub
// refuses is reported as rejected.
func (c *Client) Login(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("token rejected by github: %w", err)
		}
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return user.GetLogin(), nil
}

// CheckAccess confirms the configured repository is visible to the token.
func (c *Client) CheckAccess(ctx context.Context) error {
	_, resp, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return fmt.Errorf("repository %s not found or not visible to token", c.Repository())
		}
		return fmt.Errorf("fetching repository %s: %w", c.Repository(), err)
	}
	return nil
}
