package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrInvalidRepository  = errors.New("invalid repository name")
)

const DefaultAnalysisWindow = 30 * 24 * time.Hour

type AnalyzerConfig struct {
	// Username owns repositories requested by bare name.
	Username string
	Window   time.Duration
	Now      func() time.Time
}

// Analysis is a point-in-time report on one repository. Nothing in it is
// persisted or delivered as an event.
type Analysis struct {
	Name           string
	FullName       string
	Description    string
	Language       string
	Stars          int
	Forks          int
	OpenIssues     int
	Size           int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PushedAt       time.Time
	RecentActivity Activity
	CodeQuality    Quality
}

type Activity struct {
	Since              time.Time
	Commits            int
	ActiveContributors int
	PullRequests       int
}

type Quality struct {
	HasReadme   bool
	HasLicense  bool
	LicenseName string
	HasActions  bool
	HealthScore int
	HealthGrade string
}

// Analyzer reads live repository statistics, recent activity and a few
// health indicators from the GitHub API.
type Analyzer struct {
	api    API
	cfg    AnalyzerConfig
	logger *slog.Logger
}

func NewAnalyzer(api API, cfg AnalyzerConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultAnalysisWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{api: api, cfg: cfg, logger: logger}
}

// Analyze reports on repository, given as "owner/name" or as a bare name
// owned by the configured username.
func (a *Analyzer) Analyze(ctx context.Context, repository string) (*Analysis, error) {
	owner, name, err := a.resolve(repository)
	if err != nil {
		return nil, err
	}

	r, resp, err := a.api.Repositories.Get(ctx, owner, name)
	if err != nil {
		if notFound(resp, err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, name)
		}
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}

	out := &Analysis{
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		Language:    r.GetLanguage(),
		Stars:       r.GetStargazersCount(),
		Forks:       r.GetForksCount(),
		OpenIssues:  r.GetOpenIssuesCount(),
		Size:        r.GetSize(),
		CreatedAt:   r.GetCreatedAt().Time,
		UpdatedAt:   r.GetUpdatedAt().Time,
		PushedAt:    r.GetPushedAt().Time,
	}
	if out.FullName == "" {
		out.FullName = owner + "/" + name
	}

	since := a.cfg.Now().Add(-a.cfg.Window).UTC()
	if out.RecentActivity, err = a.activity(ctx, owner, name, since); err != nil {
		return nil, err
	}
	if out.CodeQuality, err = a.quality(ctx, owner, name, r); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "repository analyzed",
		"repository", out.FullName,
		"commits", out.RecentActivity.Commits,
		"health_score", out.CodeQuality.HealthScore)
	return out, nil
}

func (a *Analyzer) resolve(repository string) (owner, name string, err error) {
	repository = strings.Trim(repository, "/")
	if strings.Contains(repository, "/") {
		owner, name, err = splitScope(repository)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrInvalidRepository, err)
		}
		return owner, name, nil
	}
	if repository == "" || a.cfg.Username == "" {
		return "", "", fmt.Errorf("%w: %q, want owner/name", ErrInvalidRepository, repository)
	}
	return a.cfg.Username, repository, nil
}

func (a *Analyzer) activity(ctx context.Context, owner, name string, since time.Time) (Activity, error) {
	act := Activity{Since: since}

	contributors := make(map[string]struct{})
	copts := &gh.CommitsListOptions{Since: since, ListOptions: gh.ListOptions{PerPage: defaultPerPage}}
	for {
		page, resp, err := a.api.Repositories.ListCommits(ctx, owner, name, copts)
		if err != nil {
			// An empty repository answers 409 Conflict
			if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusConflict {
				break
			}
			return Activity{}, fmt.Errorf("listing commits of %s/%s: %w", owner, name, err)
		}
		for _, c := range page {
			act.Commits++
			if author := c.GetCommit().GetAuthor().GetName(); author != "" {
				contributors[author] = struct{}{}
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		copts.Page = resp.NextPage
	}
	act.ActiveContributors = len(contributors)

	popts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: defaultPerPage},
	}
	for {
		page, resp, err := a.api.PullRequests.List(ctx, owner, name, popts)
		if err != nil {
			return Activity{}, fmt.Errorf("listing pull requests of %s/%s: %w", owner, name, err)
		}
		for _, pr := range page {
			if !pr.GetCreatedAt().After(since) {
				return act, nil
			}
			act.PullRequests++
		}
		if resp == nil || resp.NextPage == 0 {
			return act, nil
		}
		popts.Page = resp.NextPage
	}
}

func (a *Analyzer) quality(ctx context.Context, owner, name string, r *gh.Repository) (Quality, error) {
	var q Quality

	_, resp, err := a.api.Repositories.GetReadme(ctx, owner, name, nil)
	switch {
	case err == nil:
		q.HasReadme = true
	case !notFound(resp, err):
		return Quality{}, fmt.Errorf("fetching readme of %s/%s: %w", owner, name, err)
	}

	if l := r.GetLicense(); l != nil {
		q.HasLicense = true
		q.LicenseName = l.GetName()
	}

	if a.api.Actions != nil {
		wf, resp, err := a.api.Actions.ListWorkflows(ctx, owner, name, &gh.ListOptions{PerPage: 1})
		switch {
		case err == nil:
			q.HasActions = wf.GetTotalCount() > 0
		case !notFound(resp, err):
			return Quality{}, fmt.Errorf("listing workflows of %s/%s: %w", owner, name, err)
		}
	}

	q.HealthScore = HealthScore(q, r.GetStargazersCount())
	q.HealthGrade = HealthGrade(q.HealthScore)
	return q, nil
}

// HealthScore awards 25 points each for a readme, a license, at least one
// Actions workflow and at least one star.
func HealthScore(q Quality, stars int) int {
	score := 0
	for _, ok := range []bool{q.HasReadme, q.HasLicense, q.HasActions, stars > 0} {
		if ok {
			score += 25
		}
	}
	return score
}

func HealthGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func notFound(resp *gh.Response, err error) bool {
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ge *gh.ErrorResponse
	return errors.As(err, &ge) && ge.Response != nil && ge.Response.StatusCode == http.StatusNotFound
}
