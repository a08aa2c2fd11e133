package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newTestClient returns a client pointed at a test server.
func newTestClient(serverURL string) *Client {
	return NewClient("test-token", "owner", "repo").WithBaseURL(serverURL)
}

func TestCreateIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/owner/repo/issues" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["title"] != "Test Spec" {
			t.Errorf("title = %v", body["title"])
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1,"node_id":"I_abc","number":42,"title":"Test Spec","state":"open","html_url":"https://example.com/42"}`)
	}))
	defer server.Close()

	issue, err := newTestClient(server.URL).CreateIssue(context.Background(), "Test Spec", "body", []string{"phase:requirements"})
	if err != nil {
		t.Fatalf("CreateIssue error: %v", err)
	}
	if issue.Number != 42 || issue.NodeID != "I_abc" {
		t.Errorf("issue = %+v", issue)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetIssue(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if !IsDeleted(err) {
		t.Error("IsDeleted should report true for 404")
	}
}

func TestGetIssueGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetIssue(context.Background(), 7)
	if !errors.Is(err, ErrGone) {
		t.Errorf("err = %v, want ErrGone", err)
	}
	if !IsDeleted(err) {
		t.Error("IsDeleted should report true for 410")
	}
}

func TestRateLimitRetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":1,"number":5,"title":"ok","state":"open"}`)
	}))
	defer server.Close()

	issue, err := newTestClient(server.URL).GetIssue(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetIssue error: %v", err)
	}
	if issue.Number != 5 {
		t.Errorf("Number = %d", issue.Number)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestRateLimitExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	// Shrink the backoff so exhaustion is fast.
	c := newTestClient(server.URL).WithHTTPClient(&http.Client{Timeout: 5 * time.Second})
	_, err := c.GetIssue(context.Background(), 5)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	if got := calls.Load(); got != MaxRetries+1 {
		t.Errorf("server saw %d calls, want %d", got, MaxRetries+1)
	}
}

func TestServerHintBackOffPrefersHintOnce(t *testing.T) {
	b := &serverHintBackOff{BackOff: backoff.NewConstantBackOff(50 * time.Millisecond)}
	b.hint = 3 * time.Second

	// The server delay replaces (not adds to) the policy interval.
	if got := b.NextBackOff(); got != 3*time.Second {
		t.Errorf("NextBackOff = %v, want the 3s server hint", got)
	}
	// The hint is consumed; later waits come from the wrapped policy.
	if got := b.NextBackOff(); got != 50*time.Millisecond {
		t.Errorf("NextBackOff after hint = %v, want 50ms", got)
	}
}

func TestServerHintBackOffPropagatesStop(t *testing.T) {
	b := &serverHintBackOff{BackOff: &backoff.StopBackOff{}}
	b.hint = time.Second
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("NextBackOff = %v, want Stop even with a pending hint", got)
	}
}

func TestForbiddenWithRemainingZeroIsRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"id":1,"number":3,"state":"open"}`)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).GetIssue(context.Background(), 3); err != nil {
		t.Fatalf("GetIssue error: %v", err)
	}
}

func TestForbiddenWithoutRemainingIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"no"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetIssue(context.Background(), 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("permanent failure retried: %d calls", got)
	}
}

func TestCloseIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["state"] != "closed" || body["state_reason"] != "completed" {
			t.Errorf("body = %v", body)
		}
		fmt.Fprint(w, `{"id":1,"number":9,"state":"closed"}`)
	}))
	defer server.Close()

	issue, err := newTestClient(server.URL).CloseIssue(context.Background(), 9, "completed")
	if err != nil {
		t.Fatalf("CloseIssue error: %v", err)
	}
	if issue.State != "closed" {
		t.Errorf("State = %q", issue.State)
	}
}

func TestCreatePullRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/pulls" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["head"] != "spec/abc123" || body["base"] != "main" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1,"number":12,"html_url":"https://example.com/pull/12","state":"open"}`)
	}))
	defer server.Close()

	pr, err := newTestClient(server.URL).CreatePullRequest(context.Background(), "title", "body", "spec/abc123", "main")
	if err != nil {
		t.Fatalf("CreatePullRequest error: %v", err)
	}
	if pr.Number != 12 {
		t.Errorf("Number = %d", pr.Number)
	}
}

func TestAddSubIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Variables["parentId"] != "I_parent" || req.Variables["childId"] != "I_child" {
			t.Errorf("variables = %v", req.Variables)
		}
		fmt.Fprint(w, `{"data":{"addSubIssue":{"issue":{"number":1},"subIssue":{"number":2}}}}`)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).AddSubIssue(context.Background(), "I_parent", "I_child"); err != nil {
		t.Fatalf("AddSubIssue error: %v", err)
	}
}

func TestAddSubIssueGraphQLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"Could not resolve to a node","type":"NOT_FOUND"}]}`)
	}))
	defer server.Close()

	err := newTestClient(server.URL).AddSubIssue(context.Background(), "I_x", "I_y")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAddToProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"addProjectV2ItemById":{"item":{"id":"PVTI_item1"}}}}`)
	}))
	defer server.Close()

	itemID, err := newTestClient(server.URL).AddToProject(context.Background(), "PVT_proj", "I_abc")
	if err != nil {
		t.Fatalf("AddToProject error: %v", err)
	}
	if itemID != "PVTI_item1" {
		t.Errorf("itemID = %q", itemID)
	}
}

func TestLabelNames(t *testing.T) {
	labels := []Label{{Name: "phase:design"}, {Name: "spec"}}
	got := LabelNames(labels)
	if len(got) != 2 || got[0] != "phase:design" || got[1] != "spec" {
		t.Errorf("LabelNames = %v", got)
	}
}
