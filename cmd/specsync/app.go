package main

import (
	"fmt"
	"path/filepath"

	"github.com/sddkit/specsync/internal/config"
	"github.com/sddkit/specsync/internal/eventbus"
	"github.com/sddkit/specsync/internal/gitx"
	"github.com/sddkit/specsync/internal/storage"
	"github.com/sddkit/specsync/internal/sync"
	"github.com/sddkit/specsync/internal/tracker"
	"github.com/sddkit/specsync/internal/workflow"
)

// app bundles the wired engine components for one command invocation. This
// is the only place the process-wide default bus is touched; everything
// below it takes its dependencies explicitly.
type app struct {
	root     string
	specsDir string
	store    *storage.DB
	repo     *gitx.Repo
	client   *tracker.Client
	svc      *sync.Service
	orch     *workflow.Orchestrator
	bus      *eventbus.Bus
}

// newApp opens the store and wires the repo, tracker client, sync service,
// bus handlers, and orchestrator from configuration.
func newApp() (*app, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}

	cfgDir := filepath.Join(root, config.DirName)
	specsDirName, dbName := config.WorkspaceLayout(cfgDir)

	dbPath := filepath.Join(cfgDir, dbName)
	store, err := storage.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}

	specsDir := filepath.Join(root, specsDirName)

	var repoOpts []gitx.Option
	if protected := config.ProtectedBranchesWithEnv(); len(protected) > 0 {
		repoOpts = append(repoOpts, gitx.WithProtectedBranches(protected))
	}
	if base := config.GetString(config.KeyBaseBranch); base != "" {
		repoOpts = append(repoOpts, gitx.WithBaseBranch(base))
	}
	if release := config.GetString(config.KeyReleaseBranch); release != "" {
		repoOpts = append(repoOpts, gitx.WithReleaseBranch(release))
	}
	repo := gitx.NewRepo(root, repoOpts...)

	client := newTrackerClient()

	var svcOpts []sync.Option
	if project := config.GetString(config.KeyProjectID); project != "" {
		svcOpts = append(svcOpts, sync.WithProject(project))
	}
	svc := sync.New(store, client, specsDir, svcOpts...)

	eventbus.SetInitializer(func(b *eventbus.Bus) error {
		workflow.RegisterBuiltins(b, store, repo, svc, client, specsDir)
		return nil
	})
	bus := eventbus.Default()
	if err := eventbus.WaitReady(0); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		root:     root,
		specsDir: specsDir,
		store:    store,
		repo:     repo,
		client:   client,
		svc:      svc,
		orch:     workflow.New(store, bus),
		bus:      bus,
	}, nil
}

// newTrackerClient builds the tracker client from config, or nil when the
// token, owner, or repo is missing.
func newTrackerClient() *tracker.Client {
	token := config.GetString(config.KeyGitHubToken)
	owner := config.GetString(config.KeyGitHubOwner)
	repo := config.GetString(config.KeyGitHubRepo)
	if token == "" || owner == "" || repo == "" {
		return nil
	}
	client := tracker.NewClient(token, owner, repo)
	if apiURL := config.GetString(config.KeyGitHubAPIURL); apiURL != "" && apiURL != tracker.DefaultAPIEndpoint {
		client = client.WithBaseURL(apiURL)
	}
	return client
}

// Close releases the app's resources.
func (a *app) Close() error {
	return a.store.Close()
}
