package github

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	gh "github.com/google/go-github/v66/github"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

const CommitsAdapterName = "github.commits"

type CommitsConfig struct {
	Scopes   *adapter.ScopeSet
	Username string
	Lookback time.Duration
	// FetchStats adds a GetCommit call per commit to include file and line counts.
	FetchStats bool
}

// CommitsAdapter emits one GitHubCommitPushedEvent per commit on a repository's
// default branch. Boundary policy: commits dated strictly after the watermark.
type CommitsAdapter struct {
	repos  RepositoriesAPI
	cfg    CommitsConfig
	logger *slog.Logger
}

func NewCommitsAdapter(repos RepositoriesAPI, cfg CommitsConfig, logger *slog.Logger) *CommitsAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = adapter.NewScopeSet()
	}
	return &CommitsAdapter{repos: repos, cfg: cfg, logger: logger}
}

func (a *CommitsAdapter) Name() string               { return CommitsAdapterName }
func (a *CommitsAdapter) Source() model.SourceSystem { return model.SourceGitHub }
func (a *CommitsAdapter) Lookback() time.Duration    { return a.cfg.Lookback }

func (a *CommitsAdapter) Scopes(ctx context.Context) ([]string, error) {
	return repoScopes(ctx, a.repos, a.cfg.Scopes, a.cfg.Username)
}

type commitItem struct {
	Repo   repoInfo
	Commit *gh.RepositoryCommit
}

func (a *CommitsAdapter) ListSince(ctx context.Context, scope string, since cursor.Position) (iter.Seq2[adapter.RawItem, error], error) {
	owner, name, err := splitScope(scope)
	if err != nil {
		return nil, err
	}

	repo, err := fetchRepo(ctx, a.repos, owner, name)
	if err != nil {
		return nil, err
	}

	// The API returns newest first; the whole window is read before ordering.
	var items []adapter.RawItem
	opts := &gh.CommitsListOptions{
		SHA:         repo.DefaultBranch,
		Since:       since.Time,
		ListOptions: gh.ListOptions{PerPage: defaultPerPage},
	}
	for {
		page, resp, err := a.repos.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s: %w", scope, err)
		}
		for _, c := range page {
			items = append(items, adapter.RawItem{
				ID:        c.GetSHA(),
				Timestamp: commitTime(c, since.Time),
				Data:      &commitItem{Repo: repo, Commit: c},
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	ordered := adapter.Ascending(items, since)
	if a.cfg.FetchStats {
		a.attachStats(ctx, owner, name, ordered)
	}
	return adapter.Sequence(ordered), nil
}

// attachStats replaces list entries with full commits. A failed lookup keeps
// the list entry, which only lacks stats.
func (a *CommitsAdapter) attachStats(ctx context.Context, owner, name string, items []adapter.RawItem) {
	for _, item := range items {
		ci := item.Data.(*commitItem)
		full, _, err := a.repos.GetCommit(ctx, owner, name, item.ID, nil)
		if err != nil {
			a.logger.WarnContext(ctx, "commit stats unavailable", "sha", item.ID, "error", err)
			continue
		}
		ci.Commit = full
	}
}

// commitTime is the committer date, then the author date. Without either the
// item stays at the watermark so it never advances the cursor.
func commitTime(c *gh.RepositoryCommit, fallback time.Time) time.Time {
	if d := c.GetCommit().GetCommitter().GetDate(); !d.IsZero() {
		return d.Time.UTC()
	}
	if d := c.GetCommit().GetAuthor().GetDate(); !d.IsZero() {
		return d.Time.UTC()
	}
	return fallback
}

type commitPayload struct {
	Repository         string   `json:"repository"`
	CommitID           string   `json:"commitId"`
	Message            string   `json:"message"`
	URL                string   `json:"url"`
	Branch             string   `json:"branch"`
	Author             string   `json:"author"`
	AuthorEmail        string   `json:"authorEmail"`
	AuthorLogin        string   `json:"authorLogin"`
	FilesChanged       *int     `json:"filesChanged,omitempty"`
	Additions          *int     `json:"additions,omitempty"`
	Deletions          *int     `json:"deletions,omitempty"`
	RepositoryMetadata repoInfo `json:"repositoryMetadata"`
}

func (a *CommitsAdapter) Normalize(item adapter.RawItem) (*model.Event, error) {
	ci, ok := item.Data.(*commitItem)
	if !ok || ci.Commit == nil {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "unexpected item data")
	}
	c := ci.Commit

	sha := c.GetSHA()
	if sha == "" {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "commit sha missing")
	}
	message := c.GetCommit().GetMessage()
	if message == "" {
		return nil, adapter.NewNormalizationError(a.Name(), sha, "commit message missing")
	}
	ts := commitTime(c, time.Time{})
	if ts.IsZero() {
		return nil, adapter.NewNormalizationError(a.Name(), sha, "commit date missing")
	}

	p := commitPayload{
		Repository:         ci.Repo.FullName,
		CommitID:           sha,
		Message:            message,
		URL:                c.GetHTMLURL(),
		Branch:             adapter.OrUnknown(ci.Repo.DefaultBranch),
		Author:             adapter.OrUnknown(c.GetCommit().GetAuthor().GetName()),
		AuthorEmail:        adapter.OrUnknown(c.GetCommit().GetAuthor().GetEmail()),
		AuthorLogin:        adapter.OrUnknown(c.GetAuthor().GetLogin()),
		RepositoryMetadata: ci.Repo,
	}
	if c.Stats != nil {
		files := len(c.Files)
		additions := c.GetStats().GetAdditions()
		deletions := c.GetStats().GetDeletions()
		p.FilesChanged = &files
		p.Additions = &additions
		p.Deletions = &deletions
	}

	return newEvent(a.Name(), sha, model.EventGitHubCommitPushed, sha, ts, nil, p)
}

// newEvent builds an event whose ID is derived from its identity.
func newEvent(adapterName, itemID string, eventType model.EventType, entityID string, ts time.Time, correlationID *string, payload any) (*model.Event, error) {
	body, err := model.MarshalPayload(payload)
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: adapterName, ItemID: itemID, Reason: "payload encoding", Err: err}
	}
	identity := model.Identity{SourceSystem: model.SourceGitHub, SourceEntityID: entityID, EventType: eventType}
	event, err := model.NewEvent(model.Draft{
		EventID:        model.IdentityID(identity),
		CorrelationID:  correlationID,
		Timestamp:      ts,
		SourceSystem:   model.SourceGitHub,
		SourceEntityID: entityID,
		EventType:      eventType,
		Payload:        body,
	})
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: adapterName, ItemID: itemID, Reason: "invalid event", Err: err}
	}
	return event, nil
}
