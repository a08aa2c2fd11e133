package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sddkit/specsync/internal/specdoc"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/tracker"
	"github.com/sddkit/specsync/internal/types"
)

// fakeTracker is an in-memory stand-in for the remote tracker API.
type fakeTracker struct {
	mu         sync.Mutex
	nextNumber int
	issues     map[int]*tracker.Issue
	comments   map[int][]string
	subLinks   map[string]string // child node ID -> parent node ID
	projectAdds []string          // content node IDs added to the board

	deleted        map[int]bool // issues answering 404
	transient      map[int]bool // issues answering 500
	failProjectAdd bool

	srv *httptest.Server
}

func newFakeTracker(t *testing.T) *fakeTracker {
	t.Helper()
	f := &fakeTracker{
		nextNumber: 100,
		issues:     make(map[int]*tracker.Issue),
		comments:   make(map[int][]string),
		subLinks:   make(map[string]string),
		deleted:    make(map[int]bool),
		transient:  make(map[int]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/owner/repo/issues", f.handleCreate)
	mux.HandleFunc("GET /repos/owner/repo/issues/{number}", f.handleGet)
	mux.HandleFunc("PATCH /repos/owner/repo/issues/{number}", f.handleUpdate)
	mux.HandleFunc("POST /repos/owner/repo/issues/{number}/comments", f.handleComment)
	mux.HandleFunc("POST /graphql", f.handleGraphQL)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTracker) client() *tracker.Client {
	return tracker.NewClient("tok", "owner", "repo").WithBaseURL(f.srv.URL)
}

// addIssue seeds an issue and returns it.
func (f *fakeTracker) addIssue(title, body, state string) *tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNumber++
	issue := &tracker.Issue{
		ID:      f.nextNumber,
		NodeID:  fmt.Sprintf("I_node%d", f.nextNumber),
		Number:  f.nextNumber,
		Title:   title,
		Body:    body,
		State:   state,
		HTMLURL: fmt.Sprintf("%s/issues/%d", f.srv.URL, f.nextNumber),
	}
	f.issues[issue.Number] = issue
	return issue
}

func (f *fakeTracker) issue(number int) *tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[number]
}

func (f *fakeTracker) issueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issues)
}

func (f *fakeTracker) commentsFor(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[number]...)
}

func (f *fakeTracker) projectAddCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.projectAdds)
}

// mutate runs fn under the fake's lock, for seeding remote-side drift.
func (f *fakeTracker) mutate(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func pathNumber(r *http.Request) int {
	n, _ := strconv.Atoi(r.PathValue("number"))
	return n
}

func (f *fakeTracker) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	issue := f.addIssue(req.Title, req.Body, "open")
	f.mu.Lock()
	for _, l := range req.Labels {
		issue.Labels = append(issue.Labels, tracker.Label{Name: l})
	}
	f.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(issue)
}

func (f *fakeTracker) handleGet(w http.ResponseWriter, r *http.Request) {
	n := pathNumber(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transient[n] {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	issue, ok := f.issues[n]
	if !ok || f.deleted[n] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(issue)
}

func (f *fakeTracker) handleUpdate(w http.ResponseWriter, r *http.Request) {
	n := pathNumber(r)
	var updates map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&updates)

	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[n]
	if !ok || f.deleted[n] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if v, ok := updates["title"].(string); ok {
		issue.Title = v
	}
	if v, ok := updates["body"].(string); ok {
		issue.Body = v
	}
	if v, ok := updates["state"].(string); ok {
		issue.State = v
	}
	if v, ok := updates["labels"].([]interface{}); ok {
		issue.Labels = nil
		for _, l := range v {
			if name, ok := l.(string); ok {
				issue.Labels = append(issue.Labels, tracker.Label{Name: name})
			}
		}
	}
	_ = json.NewEncoder(w).Encode(issue)
}

func (f *fakeTracker) handleComment(w http.ResponseWriter, r *http.Request) {
	n := pathNumber(r)
	var req struct {
		Body string `json:"body"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.comments[n] = append(f.comments[n], req.Body)
	f.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"id":1,"body":%q}`, req.Body)
}

func (f *fakeTracker) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(req.Query, "addSubIssue"):
		parent, _ := req.Variables["parentId"].(string)
		child, _ := req.Variables["childId"].(string)
		f.subLinks[child] = parent
		fmt.Fprint(w, `{"data":{"addSubIssue":{"issue":{"number":1},"subIssue":{"number":2}}}}`)
	case strings.Contains(req.Query, "addProjectV2ItemById"):
		if f.failProjectAdd {
			fmt.Fprint(w, `{"errors":[{"message":"board unavailable"}]}`)
			return
		}
		content, _ := req.Variables["contentId"].(string)
		f.projectAdds = append(f.projectAdds, content)
		fmt.Fprint(w, `{"data":{"addProjectV2ItemById":{"item":{"id":"PVTI_1"}}}}`)
	default:
		fmt.Fprint(w, `{"errors":[{"message":"unknown mutation"}]}`)
	}
}

// fixture bundles the store, specs dir, fake tracker, and service under test.
type fixture struct {
	store    storage.Store
	specsDir string
	fake     *fakeTracker
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := storage.New(t.TempDir() + "/specsync.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := newFakeTracker(t)
	specsDir := t.TempDir()
	return &fixture{
		store:    db,
		specsDir: specsDir,
		fake:     fake,
		svc:      New(db, fake.client(), specsDir, opts...),
	}
}

// addSpec seeds a spec row and its on-disk document.
func (fx *fixture) addSpec(t *testing.T, id, name, content string) *types.Spec {
	t.Helper()
	spec := &types.Spec{ID: id, Name: name, Phase: types.PhaseRequirements}
	if err := fx.store.CreateSpec(context.Background(), spec); err != nil {
		t.Fatalf("create spec: %v", err)
	}
	if _, err := specdoc.Save(fx.specsDir, id, content); err != nil {
		t.Fatalf("save doc: %v", err)
	}
	return spec
}

func TestSyncSpecToIssueCreates(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login Flow\n\nSupport login.\n")

	result, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("SyncSpecToIssue error: %v", err)
	}
	if result.Action != "created" {
		t.Errorf("Action = %q", result.Action)
	}

	issue := fx.fake.issue(result.IssueNumber)
	if issue == nil {
		t.Fatal("issue not created remotely")
	}
	if issue.Title != "Login Flow" {
		t.Errorf("Title = %q, want document heading", issue.Title)
	}
	names := tracker.LabelNames(issue.Labels)
	if len(names) != 2 || names[0] != "spec" || names[1] != "phase:requirements" {
		t.Errorf("Labels = %v", names)
	}

	rec, err := fx.store.GetSyncRecord(context.Background(), types.EntitySpec, "abc123de")
	if err != nil {
		t.Fatalf("sync record: %v", err)
	}
	if rec.IssueNumber != result.IssueNumber || rec.SyncStatus != types.SyncSuccess {
		t.Errorf("record = %+v", rec)
	}
}

func TestSyncSpecToIssueDuplicateIsFatal(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login\n")

	if _, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	before := fx.fake.issueCount()

	_, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if !errors.Is(err, ErrDuplicateIssue) {
		t.Errorf("err = %v, want ErrDuplicateIssue", err)
	}
	if fx.fake.issueCount() != before {
		t.Error("a second issue was created despite the duplicate guard")
	}
}

func TestSyncSpecToIssueUpdateOverwrites(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login\n\nv1 content.\n")

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}

	// Remote drift: someone edited the issue. Local wins.
	fx.fake.mutate(func() { fx.fake.issues[created.IssueNumber].Body = "remote edits that must be discarded" })

	if _, err := specdoc.Save(fx.specsDir, "abc123de", "# Login\n\nv2 content.\n"); err != nil {
		t.Fatal(err)
	}
	result, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", false)
	if err != nil {
		t.Fatalf("update sync: %v", err)
	}
	if result.Action != "updated" {
		t.Errorf("Action = %q", result.Action)
	}

	issue := fx.fake.issue(created.IssueNumber)
	if !strings.Contains(issue.Body, "v2 content") || strings.Contains(issue.Body, "remote edits") {
		t.Errorf("Body = %q, want local content to win", issue.Body)
	}
	if got := fx.fake.commentsFor(created.IssueNumber); len(got) != 1 {
		t.Errorf("comments = %v, want one synced comment", got)
	}
}

func TestSyncSpecToIssueUnlinkedWithoutCreate(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login\n")

	_, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", false)
	if !errors.Is(err, ErrNotLinked) {
		t.Errorf("err = %v, want ErrNotLinked", err)
	}
}

func TestSyncRecoversDeletedIssue(t *testing.T) {
	fx := newFixture(t, WithProject("PVT_board"))
	fx.addSpec(t, "abc123de", "Login", "# Login\n\nContent.\n")

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}
	fx.fake.mutate(func() {
		fx.fake.deleted[created.IssueNumber] = true
		fx.fake.projectAdds = nil
	})

	result, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", false)
	if err != nil {
		t.Fatalf("recovery sync: %v", err)
	}
	if result.Action != "recreated" {
		t.Errorf("Action = %q", result.Action)
	}
	if result.IssueNumber == created.IssueNumber {
		t.Error("expected a new issue number after recreation")
	}

	rec, _ := fx.store.GetSyncRecord(context.Background(), types.EntitySpec, "abc123de")
	if rec.IssueNumber != result.IssueNumber {
		t.Errorf("record points at #%d, want #%d", rec.IssueNumber, result.IssueNumber)
	}
	if got := fx.fake.projectAddCount(); got != 1 {
		t.Errorf("project adds = %d, want re-add after recreation", got)
	}
}

func TestProjectBoardFailureIsWarningOnly(t *testing.T) {
	fx := newFixture(t, WithProject("PVT_board"))
	fx.fake.mutate(func() { fx.fake.failProjectAdd = true })
	fx.addSpec(t, "abc123de", "Login", "# Login\n")

	result, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("sync must not fail on board error: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a project board warning")
	}
}

func TestTransientLookupAssumesIssueExists(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login\n")

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}
	fx.fake.mutate(func() { fx.fake.transient[created.IssueNumber] = true })
	issuesBefore := fx.fake.issueCount()

	// The existence lookup fails transiently; no duplicate may be created. The
	// subsequent update PATCH still succeeds because only GET is failed.
	result, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", false)
	if err != nil {
		t.Fatalf("sync error: %v", err)
	}
	if result.Action != "updated" {
		t.Errorf("Action = %q", result.Action)
	}
	if fx.fake.issueCount() != issuesBefore {
		t.Error("transient lookup failure caused duplicate creation")
	}
}

func TestSyncIssueToSpecClosedAdvancesPhase(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Login", "# Login\n")

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}
	fx.fake.mutate(func() { fx.fake.issues[created.IssueNumber].State = "closed" })

	if _, err := fx.svc.SyncIssueToSpec(context.Background(), "abc123de"); err != nil {
		t.Fatalf("SyncIssueToSpec error: %v", err)
	}

	spec, _ := fx.store.GetSpec(context.Background(), "abc123de")
	if spec.Phase != types.PhaseCompleted {
		t.Errorf("Phase = %q, want completed", spec.Phase)
	}
}

func TestSyncIssueToSpecRenames(t *testing.T) {
	fx := newFixture(t)
	fx.addSpec(t, "abc123de", "Old Name", "# Old Name\n")

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}
	fx.fake.mutate(func() { fx.fake.issues[created.IssueNumber].Title = "New Name" })

	if _, err := fx.svc.SyncIssueToSpec(context.Background(), "abc123de"); err != nil {
		t.Fatalf("SyncIssueToSpec error: %v", err)
	}
	spec, _ := fx.store.GetSpec(context.Background(), "abc123de")
	if spec.Name != "New Name" {
		t.Errorf("Name = %q", spec.Name)
	}
}

func TestSyncIssueToSpecAppliesCheckboxChangesOnly(t *testing.T) {
	fx := newFixture(t)
	docContent := "# Login\n\nIntro prose stays.\n\n## Tasks\n\n- [ ] A\n- [x] B\n"
	fx.addSpec(t, "abc123de", "Login", docContent)

	created, err := fx.svc.SyncSpecToIssue(context.Background(), "abc123de", true)
	if err != nil {
		t.Fatalf("create sync: %v", err)
	}
	// The remote body drifts in prose and checkbox state; only the checkbox
	// state may flow back.
	fx.fake.mutate(func() {
		fx.fake.issues[created.IssueNumber].Body = "totally different prose\n\n- [x] A\n- [ ] B\n"
		fx.fake.issues[created.IssueNumber].Title = "Login"
	})

	if _, err := fx.svc.SyncIssueToSpec(context.Background(), "abc123de"); err != nil {
		t.Fatalf("SyncIssueToSpec error: %v", err)
	}

	doc, err := specdoc.Load(fx.specsDir, "abc123de")
	if err != nil {
		t.Fatal(err)
	}
	want := "# Login\n\nIntro prose stays.\n\n## Tasks\n\n- [x] A\n- [ ] B\n"
	if doc.Content != want {
		t.Errorf("document = %q\nwant %q", doc.Content, want)
	}

	spec, _ := fx.store.GetSpec(context.Background(), "abc123de")
	if spec.ContentHash != specdoc.Hash(want) {
		t.Error("content hash not refreshed after checkbox apply")
	}
}

func TestNilClientFailsFast(t *testing.T) {
	db, err := storage.New(t.TempDir() + "/specsync.db")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	svc := New(db, nil, t.TempDir())

	if _, err := svc.SyncSpecToIssue(context.Background(), "abc123de", true); !errors.Is(err, ErrClientNotInitialized) {
		t.Errorf("err = %v, want ErrClientNotInitialized", err)
	}
	if _, err := svc.SyncIssueToSpec(context.Background(), "abc123de"); !errors.Is(err, ErrClientNotInitialized) {
		t.Errorf("err = %v, want ErrClientNotInitialized", err)
	}
}
