package github

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	gh "github.com/google/go-github/v66/github"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/model"
)

const PullsAdapterName = "github.pulls"

type PullsConfig struct {
	Scopes   *adapter.ScopeSet
	Username string
	Lookback time.Duration
}

// PullsAdapter tracks pull requests by updated_at. A pull request created after
// the watermark yields GitHubPullRequestOpenedEvent; one created earlier but
// updated since yields GitHubPullRequestUpdatedEvent, keyed by the update time
// so each distinct update is its own event and a re-fetch of the same update
// deduplicates.
type PullsAdapter struct {
	repos  RepositoriesAPI
	pulls  PullRequestsAPI
	cfg    PullsConfig
	logger *slog.Logger
}

func NewPullsAdapter(api API, cfg PullsConfig, logger *slog.Logger) *PullsAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scopes == nil {
		cfg.Scopes = adapter.NewScopeSet()
	}
	return &PullsAdapter{repos: api.Repositories, pulls: api.PullRequests, cfg: cfg, logger: logger}
}

func (a *PullsAdapter) Name() string               { return PullsAdapterName }
func (a *PullsAdapter) Source() model.SourceSystem { return model.SourceGitHub }
func (a *PullsAdapter) Lookback() time.Duration    { return a.cfg.Lookback }

func (a *PullsAdapter) Scopes(ctx context.Context) ([]string, error) {
	return repoScopes(ctx, a.repos, a.cfg.Scopes, a.cfg.Username)
}

type pullItem struct {
	Repo   repoInfo
	Pull   *gh.PullRequest
	Opened bool
}

func (a *PullsAdapter) ListSince(ctx context.Context, scope string, since cursor.Position) (iter.Seq2[adapter.RawItem, error], error) {
	owner, name, err := splitScope(scope)
	if err != nil {
		return nil, err
	}

	repo, err := fetchRepo(ctx, a.repos, owner, name)
	if err != nil {
		return nil, err
	}

	var items []adapter.RawItem
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: defaultPerPage},
	}

pages:
	for {
		page, resp, err := a.pulls.List(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s: %w", scope, err)
		}
		for _, pr := range page {
			updated := pr.GetUpdatedAt().Time.UTC()
			// Sorted by updated desc: everything from here on is already seen.
			if !updated.After(since.Time) {
				break pages
			}
			items = append(items, adapter.RawItem{
				ID:        strconv.Itoa(pr.GetNumber()),
				Timestamp: updated,
				Data: &pullItem{
					Repo:   repo,
					Pull:   pr,
					Opened: pr.GetCreatedAt().Time.After(since.Time),
				},
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return adapter.Sequence(adapter.Ascending(items, since)), nil
}

type pullPayload struct {
	Repository         string   `json:"repository"`
	Number             int      `json:"number"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	State              string   `json:"state"`
	URL                string   `json:"url"`
	Author             string   `json:"author"`
	HeadBranch         string   `json:"headBranch"`
	BaseBranch         string   `json:"baseBranch"`
	Draft              bool     `json:"draft"`
	Merged             bool     `json:"merged"`
	Labels             []string `json:"labels"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
	MergedAt           string   `json:"mergedAt,omitempty"`
	ClosedAt           string   `json:"closedAt,omitempty"`
	RepositoryMetadata repoInfo `json:"repositoryMetadata"`
}

func (a *PullsAdapter) Normalize(item adapter.RawItem) (*model.Event, error) {
	pi, ok := item.Data.(*pullItem)
	if !ok || pi.Pull == nil {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "unexpected item data")
	}
	pr := pi.Pull

	if pr.GetNumber() == 0 {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "pull request number missing")
	}
	if pr.GetTitle() == "" {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "pull request title missing")
	}
	updated := pr.GetUpdatedAt().Time.UTC()
	if updated.IsZero() {
		return nil, adapter.NewNormalizationError(a.Name(), item.ID, "pull request updated_at missing")
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	p := pullPayload{
		Repository:         pi.Repo.FullName,
		Number:             pr.GetNumber(),
		Title:              pr.GetTitle(),
		Body:               pr.GetBody(),
		State:              adapter.OrUnknown(pr.GetState()),
		URL:                pr.GetHTMLURL(),
		Author:             adapter.OrUnknown(pr.GetUser().GetLogin()),
		HeadBranch:         adapter.OrUnknown(pr.GetHead().GetRef()),
		BaseBranch:         adapter.OrUnknown(pr.GetBase().GetRef()),
		Draft:              pr.GetDraft(),
		Merged:             !pr.GetMergedAt().IsZero(),
		Labels:             labels,
		CreatedAt:          formatTime(pr.GetCreatedAt().Time),
		UpdatedAt:          formatTime(updated),
		MergedAt:           formatTime(pr.GetMergedAt().Time),
		ClosedAt:           formatTime(pr.GetClosedAt().Time),
		RepositoryMetadata: pi.Repo,
	}

	entityID := fmt.Sprintf("PR_%s_%d", pi.Repo.FullName, pr.GetNumber())
	eventType := model.EventGitHubPullRequestOpened
	if !pi.Opened {
		eventType = model.EventGitHubPullRequestUpdated
		entityID = fmt.Sprintf("%s@%d", entityID, updated.Unix())
	}
	// Updates correlate to the pull request they belong to
	correlationID := fmt.Sprintf("%s#%d", pi.Repo.FullName, pr.GetNumber())

	return newEvent(a.Name(), item.ID, eventType, entityID, updated, &correlationID, p)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
