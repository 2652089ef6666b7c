package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"synapse.app/ingest/internal/adapter"
)

// RepositoriesAPI is the subset of the GitHub repositories service the adapters call.
type RepositoriesAPI interface {
	Get(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
	ListCommits(ctx context.Context, owner, repo string, opts *gh.CommitsListOptions) ([]*gh.RepositoryCommit, *gh.Response, error)
	GetCommit(ctx context.Context, owner, repo, sha string, opts *gh.ListOptions) (*gh.RepositoryCommit, *gh.Response, error)
	ListByUser(ctx context.Context, user string, opts *gh.RepositoryListByUserOptions) ([]*gh.Repository, *gh.Response, error)
	GetReadme(ctx context.Context, owner, repo string, opts *gh.RepositoryContentGetOptions) (*gh.RepositoryContent, *gh.Response, error)
}

// PullRequestsAPI is the subset of the GitHub pull requests service the adapters call.
type PullRequestsAPI interface {
	List(ctx context.Context, owner, repo string, opts *gh.PullRequestListOptions) ([]*gh.PullRequest, *gh.Response, error)
}

// ActionsAPI is the subset of the GitHub Actions service the analyzer calls.
type ActionsAPI interface {
	ListWorkflows(ctx context.Context, owner, repo string, opts *gh.ListOptions) (*gh.Workflows, *gh.Response, error)
}

type API struct {
	Repositories RepositoriesAPI
	PullRequests PullRequestsAPI
	Actions      ActionsAPI
}

// NewAPI builds an authenticated client. baseURL targets GitHub Enterprise
// and may be empty for github.com.
func NewAPI(token, baseURL string) (API, error) {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return API{}, fmt.Errorf("github enterprise url: %w", err)
		}
	}
	return API{Repositories: client.Repositories, PullRequests: client.PullRequests, Actions: client.Actions}, nil
}

const defaultPerPage = 100

// repoScopes returns the configured repositories, or every repository owned
// by username when none are configured.
func repoScopes(ctx context.Context, repos RepositoriesAPI, set *adapter.ScopeSet, username string) ([]string, error) {
	if set.Len() > 0 || username == "" {
		return set.List(), nil
	}

	var scopes []string
	opts := &gh.RepositoryListByUserOptions{
		Type:        "owner",
		ListOptions: gh.ListOptions{PerPage: defaultPerPage},
	}
	for {
		page, resp, err := repos.ListByUser(ctx, username, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories for %s: %w", username, err)
		}
		for _, r := range page {
			if name := r.GetFullName(); name != "" {
				scopes = append(scopes, name)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return scopes, nil
		}
		opts.Page = resp.NextPage
	}
}

func splitScope(scope string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(scope, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository scope %q, want owner/name", scope)
	}
	return owner, repo, nil
}

// repoInfo is the repository metadata attached to every payload.
type repoInfo struct {
	FullName      string `json:"fullName"`
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	DefaultBranch string `json:"defaultBranch"`
	URL           string `json:"url"`
	Private       bool   `json:"private"`
	Stars         int    `json:"stars"`
}

func fetchRepo(ctx context.Context, repos RepositoriesAPI, owner, name string) (repoInfo, error) {
	r, _, err := repos.Get(ctx, owner, name)
	if err != nil {
		return repoInfo{}, fmt.Errorf("fetching repository %s/%s: %w", owner, name, err)
	}
	info := repoInfo{
		FullName:      r.GetFullName(),
		Name:          r.GetName(),
		Owner:         r.GetOwner().GetLogin(),
		Description:   r.GetDescription(),
		Language:      r.GetLanguage(),
		DefaultBranch: r.GetDefaultBranch(),
		URL:           r.GetHTMLURL(),
		Private:       r.GetPrivate(),
		Stars:         r.GetStargazersCount(),
	}
	if info.FullName == "" {
		info.FullName = owner + "/" + name
	}
	if info.Name == "" {
		info.Name = name
	}
	if info.Owner == "" {
		info.Owner = owner
	}
	return info, nil
}
