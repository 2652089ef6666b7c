package gitlab

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

const CommitsAdapterName = "gitlab.commits"

// CommitsAPI is the subset of the GitLab commits service the adapter calls.
type CommitsAPI interface {
	ListCommits(pid any, opt *gl.ListCommitsOptions, options ...gl.RequestOptionFunc) ([]*gl.Commit, *gl.Response, error)
}

// ProjectsAPI is the subset of the GitLab projects service the adapter calls.
type ProjectsAPI interface {
	GetProject(pid any, opt *gl.GetProjectOptions, options ...gl.RequestOptionFunc) (*gl.Project, *gl.Response, error)
}

// NewClient builds a GitLab API client for an instance root URL such as
// https://gitlab.example.com.
func NewClient(token, instanceURL string) (*gl.Client, error) {
	if instanceURL == "" {
		return gl.NewClient(token)
	}
	return gl.NewClient(token, gl.WithBaseURL(strings.TrimSuffix(instanceURL, "/")+"/api/v4"))
}

type Config struct {
	Scopes   *adapter.ScopeSet
	Lookback time.Duration
}

// CommitsAdapter emits one GitLabCommitPushedEvent per commit on a project's
// default branch. Scopes are project paths (group/project). Boundary policy:
// commits committed strictly after the watermark.
type CommitsAdapter struct {
	commits  CommitsAPI
	projects ProjectsAPI
	cfg      Config
	logger   *slog.Logger
}

func NewCommitsAdapter(commits CommitsAPI, projects ProjectsAPI, cfg Config, logger *slog.Logger) *CommitsAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = adapter.NewScopeSet()
	}
	return &CommitsAdapter{commits: commits, projects: projects, cfg: cfg, logger: logger}
}

func (a *CommitsAdapter) Name() string               { return CommitsAdapterName }
func (a *CommitsAdapter) Source() model.SourceSystem { return model.SourceGitLab }
func (a *CommitsAdapter) Lookback() time.Duration    { return a.cfg.Lookback }

func (a *CommitsAdapter) Scopes(context.Context) ([]string, error) {
	return a.cfg.Scopes.List(), nil
}

type projectInfo struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"defaultBranch"`
	URL           string `json:"url"`
}

type commitItem struct {
	Project projectInfo
	Commit  *gl.Commit
}

func (a *CommitsAdapter) ListSince(ctx context.Context, scope string, since cursor.Position) (iter.Seq2[adapter.RawItem, error], error) {
	p, _, err := a.projects.GetProject(scope, nil, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching project %s: %w", scope, err)
	}
	project := projectInfo{
		Path:          p.PathWithNamespace,
		Name:          p.Name,
		Description:   p.Description,
		DefaultBranch: p.DefaultBranch,
		URL:           p.WebURL,
	}
	if project.Path == "" {
		project.Path = scope
	}

	opts := &gl.ListCommitsOptions{
		Since:     gl.Ptr(since.Time),
		WithStats: gl.Ptr(true),
		ListOptions: gl.ListOptions{
			Page:    1,
			PerPage: 100,
		},
	}
	if project.DefaultBranch != "" {
		opts.RefName = gl.Ptr(project.DefaultBranch)
	}

	var items []adapter.RawItem
	for {
		page, resp, err := a.commits.ListCommits(scope, opts, gl.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s: %w", scope, err)
		}
		for _, c := range page {
			items = append(items, adapter.RawItem{
				ID:        c.ID,
				Timestamp: commitTime(c, since.Time),
				Data:      &commitItem{Project: project, Commit: c},
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return adapter.Sequence(adapter.Ascending(items, since)), nil
}

func commitTime(c *gl.Commit, fallback time.Time) time.Time {
	if c.CommittedDate != nil {
		return c.CommittedDate.UTC()
	}
	if c.AuthoredDate != nil {
		return c.AuthoredDate.UTC()
	}
	return fallback
}

type commitPayload struct {
	Repository         string      `json:"repository"`
	CommitID           string      `json:"commitId"`
	ShortID            string      `json:"shortId"`
	Title              string      `json:"title"`
	Message            string      `json:"message"`
	URL                string      `json:"url"`
	Branch             string      `json:"branch"`
	Author             string      `json:"author"`
	AuthorEmail        string      `json:"authorEmail"`
	Additions          *int        `json:"additions,omitempty"`
	Deletions          *int        `json:"deletions,omitempty"`
	RepositoryMetadata projectInfo `json:"repositoryMetadata"`
}

func (a *CommitsAdapter) Normalize(item adapter.RawItem) (*model.Event, error) {
	ci, ok := item.Data.(*commitItem)
	if !ok || ci.Commit == nil {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "unexpected item data")
	}
	c := ci.Commit

	if c.ID == "" {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "commit id missing")
	}
	if c.Message == "" {
		return nil, adapter.NewNormalizationError(a.Name(), c.ID, "commit message missing")
	}
	ts := commitTime(c, time.Time{})
	if ts.IsZero() {
		return nil, adapter.NewNormalizationError(a.Name(), c.ID, "commit date missing")
	}

	p := commitPayload{
		Repository:         ci.Project.Path,
		CommitID:           c.ID,
		ShortID:            c.ShortID,
		Title:              c.Title,
		Message:            c.Message,
		URL:                c.WebURL,
		Branch:             adapter.OrUnknown(ci.Project.DefaultBranch),
		Author:             adapter.OrUnknown(c.AuthorName),
		AuthorEmail:        adapter.OrUnknown(c.AuthorEmail),
		RepositoryMetadata: ci.Project,
	}
	if c.Stats != nil {
		additions, deletions := int(c.Stats.Additions), int(c.Stats.Deletions)
		p.Additions = &additions
		p.Deletions = &deletions
	}

	body, err := model.MarshalPayload(p)
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: a.Name(), ItemID: c.ID, Reason: "payload encoding", Err: err}
	}

	identity := model.Identity{SourceSystem: model.SourceGitLab, SourceEntityID: c.ID, EventType: model.EventGitLabCommitPushed}
	event, err := model.NewEvent(model.Draft{
		EventID:        model.IdentityID(identity),
		Timestamp:      ts,
		SourceSystem:   model.SourceGitLab,
		SourceEntityID: c.ID,
		EventType:      model.EventGitLabCommitPushed,
		Payload:        body,
	})
	if err != nil {
		return nil, &adapter.NormalizationError{Adapter: a.Name(), ItemID: c.ID, Reason: "invalid event", Err: err}
	}
	return event, nil
}
