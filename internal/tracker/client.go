package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a new tracker client for one repository.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    baseURL,
		HTTPClient: c.HTTPClient,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// statusError carries a non-2xx response through the retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.body, e.code)
}

// rateLimitError marks the one class of failure the retry loop retries.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.status)
}

// isRateLimited reports whether a response is a rate-limit rejection.
// GitHub uses 429, or 403 with X-RateLimit-Remaining: 0.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// serverHintBackOff substitutes a server-provided delay for the next
// exponential interval. The hint is consumed once; without one the wrapped
// policy decides.
type serverHintBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *serverHintBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.hint > 0 {
		next = b.hint
		b.hint = 0
	}
	return next
}

// doRequest performs an authenticated HTTP request with rate-limit-aware
// retry. Only rate-limit responses are retried; every other failure is
// permanent. A Retry-After header, when present, is honored before the next
// attempt.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = RetryDelay
	hinted := &serverHintBackOff{BackOff: policy}

	var respBody []byte
	attempt := func() error {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("request failed: %w", err))
		}

		const maxResponseSize = 50 * 1024 * 1024
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		if isRateLimited(resp) {
			// A Retry-After header replaces the next exponential interval.
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					hinted.hint = time.Duration(seconds) * time.Second
				}
			}
			return &rateLimitError{status: resp.StatusCode}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var sentinel error
			switch resp.StatusCode {
			case http.StatusNotFound:
				sentinel = ErrNotFound
			case http.StatusGone:
				sentinel = ErrGone
			default:
				sentinel = &statusError{code: resp.StatusCode, body: string(data)}
			}
			return backoff.Permanent(sentinel)
		}

		respBody = data
		return nil
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(hinted, MaxRetries), ctx))
	if err != nil {
		var rl *rateLimitError
		if errors.As(err, &rl) {
			return nil, fmt.Errorf("%w after %d attempts", ErrRateLimited, MaxRetries+1)
		}
		return nil, err
	}
	return respBody, nil
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	reqBody := map[string]interface{}{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		reqBody["labels"] = labels
	}

	data, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/repos/"+c.repoPath()+"/issues", reqBody)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue updates an existing issue via PATCH.
func (c *Client) UpdateIssue(ctx context.Context, number int, updates map[string]interface{}) (*Issue, error) {
	data, err := c.doRequest(ctx, http.MethodPatch,
		c.BaseURL+"/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), updates)
	if err != nil {
		return nil, fmt.Errorf("update issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("parse update response: %w", err)
	}
	return &issue, nil
}

// GetIssue retrieves a single issue by number. Returns ErrNotFound or ErrGone
// (wrapped) when the issue is confirmed missing.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	data, err := c.doRequest(ctx, http.MethodGet,
		c.BaseURL+"/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &issue, nil
}

// CloseIssue closes an issue with the given state reason ("completed" or
// "not_planned").
func (c *Client) CloseIssue(ctx context.Context, number int, reason string) (*Issue, error) {
	updates := map[string]interface{}{"state": "closed"}
	if reason != "" {
		updates["state_reason"] = reason
	}
	return c.UpdateIssue(ctx, number, updates)
}

// CreateComment appends a comment to an issue.
func (c *Client) CreateComment(ctx context.Context, number int, body string) (*Comment, error) {
	data, err := c.doRequest(ctx, http.MethodPost,
		c.BaseURL+"/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments",
		map[string]interface{}{"body": body})
	if err != nil {
		return nil, fmt.Errorf("create comment on #%d: %w", number, err)
	}

	var comment Comment
	if err := json.Unmarshal(data, &comment); err != nil {
		return nil, fmt.Errorf("parse comment response: %w", err)
	}
	return &comment, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string) (*PullRequest, error) {
	data, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+"/repos/"+c.repoPath()+"/pulls",
		map[string]interface{}{
			"title": title,
			"body":  body,
			"head":  head,
			"base":  base,
		})
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}

	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("parse pull request response: %w", err)
	}
	return &pr, nil
}
