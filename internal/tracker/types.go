// Package tracker provides the client and data types for the remote issue
// tracker's REST and GraphQL APIs.
//
// All outbound calls are wrapped with bounded exponential-backoff retry
// triggered specifically by rate-limit responses; a server-provided retry
// delay is honored when present. Exhausting retries is fatal for that call.
package tracker

import (
	"errors"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for rate-limited requests.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxSubIssues is the tracker's per-issue child limit. Task lists larger
	// than this are rejected before any remote call.
	MaxSubIssues = 100
)

// ErrNotFound is returned when the remote object does not exist (HTTP 404).
var ErrNotFound = errors.New("tracker: not found")

// ErrGone is returned when the remote object was deleted (HTTP 410).
var ErrGone = errors.New("tracker: gone")

// ErrRateLimited is returned after rate-limit retries are exhausted.
var ErrRateLimited = errors.New("tracker: rate limit retries exhausted")

// IsDeleted reports whether err indicates the remote object is confirmed
// missing (as opposed to a transient lookup failure).
func IsDeleted(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone)
}

// Client talks to the GitHub REST and GraphQL APIs for one repository.
type Client struct {
	Token      string
	Owner      string
	Repo       string
	BaseURL    string
	HTTPClient *http.Client
}

// Issue represents an issue from the tracker API.
type Issue struct {
	ID        int        `json:"id"`
	NodeID    string     `json:"node_id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"` // "open" or "closed"
	Labels    []Label    `json:"labels"`
	HTMLURL   string     `json:"html_url"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Label represents a tracker label.
type Label struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PullRequest represents a created pull request.
type PullRequest struct {
	ID      int    `json:"id"`
	NodeID  string `json:"node_id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
}

// Comment represents an issue comment.
type Comment struct {
	ID      int    `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
