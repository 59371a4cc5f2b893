// Package github implements the DocumentStore port on the GitHub contents API
// using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DocumentStore = (*Client)(nil)

const requestTimeout = 30 * time.Second

// Client implements the driven.DocumentStore port against a single repository
// and branch.
type Client struct {
	gh     *gh.Client
	owner  string
	repo   string
	branch string // Empty means the repository's default branch.
}

// NewClient creates a new GitHub contents client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. revalidate (forces every cached GET to be revalidated with If-None-Match)
//  3. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  4. go-github (GitHub REST API client with PAT auth)
func NewClient(token, owner, repo, branch string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(&revalidate{next: cacheTransport})
	rateLimitClient.Timeout = requestTimeout
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:     client,
		owner:  owner,
		repo:   repo,
		branch: branch,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, owner, repo, branch string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:     client,
		owner:  owner,
		repo:   repo,
		branch: branch,
	}, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// Read fetches the file at path. A 404 is reported as (nil, nil).
func (c *Client) Read(ctx context.Context, path string) (*model.RemoteDocument, error) {
	var opts *gh.RepositoryContentGetOptions
	if c.branch != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: c.branch}
	}

	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, nil
		}
		return nil, transportError("read", path, resp, err)
	}

	logRateLimit(resp, path)

	if file == nil {
		return nil, transportError("read", path, resp, fmt.Errorf("path is a directory with %d entries", len(dir)))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, transportError("read", path, resp, fmt.Errorf("decoding content: %w", err))
	}

	return &model.RemoteDocument{
		Content: []byte(content),
		Version: file.GetSHA(),
	}, nil
}

// Replace creates the file when expectedVersion is empty and updates it
// otherwise. GitHub answers a stale or missing sha with 409 or 422; both
// surface as driven.ErrVersionConflict.
func (c *Client) Replace(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: content,
	}
	if c.branch != "" {
		opts.Branch = gh.Ptr(c.branch)
	}

	var (
		res  *gh.RepositoryContentResponse
		resp *gh.Response
		err  error
	)
	if expectedVersion == "" {
		res, resp, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	} else {
		opts.SHA = gh.Ptr(expectedVersion)
		res, resp, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	}
	if err != nil {
		switch statusCode(resp) {
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return "", driven.ErrVersionConflict
		}
		return "", transportError("replace", path, resp, err)
	}

	logRateLimit(resp, path)

	version := res.GetContent().GetSHA()
	if version == "" {
		return "", transportError("replace", path, resp, errors.New("response carried no content sha"))
	}
	return version, nil
}

// Delete removes the file at path if it still carries expectedVersion.
func (c *Client) Delete(ctx context.Context, path, message, expectedVersion string) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		SHA:     gh.Ptr(expectedVersion),
	}
	if c.branch != "" {
		opts.Branch = gh.Ptr(c.branch)
	}

	_, resp, err := c.gh.Repositories.DeleteFile(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		switch statusCode(resp) {
		case http.StatusNotFound:
			return driven.ErrDocumentNotFound
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return driven.ErrVersionConflict
		}
		return transportError("delete", path, resp, err)
	}

	logRateLimit(resp, path)
	return nil
}

// revalidate sets max-age=0 on outgoing GETs so the cache layer always asks
// GitHub with If-None-Match instead of serving a response it considers fresh.
// A 304 does not count against the primary rate limit.
type revalidate struct {
	next http.RoundTripper
}

func (t *revalidate) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet && req.Header.Get("Cache-Control") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Cache-Control", "max-age=0")
	}
	return t.next.RoundTrip(req)
}

func statusCode(resp *gh.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func transportError(op, path string, resp *gh.Response, err error) error {
	return &driven.TransportError{Op: op, Path: path, StatusCode: statusCode(resp), Err: err}
}

// logRateLimit logs rate limit information from the GitHub API response at debug level.
// If the remaining rate limit drops below 100, it logs a warning.
func logRateLimit(resp *gh.Response, path string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"path", path,
		"status", resp.StatusCode,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
