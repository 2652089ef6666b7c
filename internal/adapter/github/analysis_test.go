package github_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	gh "github.com/google/go-github/v66/github"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/adapter/github"
)

var _ = Describe("Analyzer", func() {
	var (
		ctx     context.Context
		now     time.Time
		repos   *mockRepositories
		pulls   *mockPullRequests
		actions *mockActions
		an      *github.Analyzer
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
		repos = &mockRepositories{}
		pulls = &mockPullRequests{}
		actions = &mockActions{}
		an = github.NewAnalyzer(
			github.API{Repositories: repos, PullRequests: pulls, Actions: actions},
			github.AnalyzerConfig{Username: "octocat", Now: func() time.Time { return now }},
			nil,
		)
	})

	It("reports stats, recent activity and a full health score", func() {
		repos.getFn = func(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
			return &gh.Repository{
				Name:            ptr("api"),
				FullName:        ptr("acme/api"),
				Language:        ptr("Go"),
				StargazersCount: ptr(12),
				ForksCount:      ptr(3),
				OpenIssuesCount: ptr(4),
				License:         &gh.License{Name: ptr("MIT License")},
			}, &gh.Response{}, nil
		}
		var since time.Time
		repos.listCommitsFn = func(ctx context.Context, owner, repo string, opts *gh.CommitsListOptions) ([]*gh.RepositoryCommit, *gh.Response, error) {
			since = opts.Since
			if opts.Page == 0 {
				return []*gh.RepositoryCommit{
					commit("a1", "one", now.Add(-time.Hour)),
					commit("a2", "two", now.Add(-2*time.Hour)),
				}, &gh.Response{NextPage: 2}, nil
			}
			other := commit("a3", "three", now.Add(-3*time.Hour))
			other.Commit.Author.Name = ptr("Hubot")
			return []*gh.RepositoryCommit{other}, &gh.Response{}, nil
		}
		pulls.listFn = func(ctx context.Context, owner, repo string, opts *gh.PullRequestListOptions) ([]*gh.PullRequest, *gh.Response, error) {
			Expect(opts.Sort).To(Equal("created"))
			return []*gh.PullRequest{
				pull(5, now.Add(-24*time.Hour), now),
				pull(4, now.Add(-40*24*time.Hour), now),
				pull(3, now.Add(-24*time.Hour), now),
			}, &gh.Response{NextPage: 2}, nil
		}
		repos.getReadmeFn = func(ctx context.Context, owner, repo string) (*gh.RepositoryContent, *gh.Response, error) {
			return &gh.RepositoryContent{Name: ptr("README.md")}, &gh.Response{}, nil
		}
		actions.listWorkflowsFn = func(ctx context.Context, owner, repo string) (*gh.Workflows, *gh.Response, error) {
			return &gh.Workflows{TotalCount: ptr(2)}, &gh.Response{}, nil
		}

		got, err := an.Analyze(ctx, "acme/api")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FullName).To(Equal("acme/api"))
		Expect(got.Stars).To(Equal(12))
		Expect(got.Forks).To(Equal(3))
		Expect(since).To(Equal(now.Add(-30 * 24 * time.Hour)))

		Expect(got.RecentActivity.Commits).To(Equal(3))
		Expect(got.RecentActivity.ActiveContributors).To(Equal(2))
		Expect(got.RecentActivity.PullRequests).To(Equal(1))

		Expect(got.CodeQuality).To(Equal(github.Quality{
			HasReadme:   true,
			HasLicense:  true,
			LicenseName: "MIT License",
			HasActions:  true,
			HealthScore: 100,
			HealthGrade: "A",
		}))
	})

	It("resolves bare names against the configured user", func() {
		var owner string
		repos.getFn = func(ctx context.Context, o, repo string) (*gh.Repository, *gh.Response, error) {
			owner = o
			return &gh.Repository{Name: ptr(repo)}, &gh.Response{}, nil
		}
		got, err := an.Analyze(ctx, "dotfiles")
		Expect(err).NotTo(HaveOccurred())
		Expect(owner).To(Equal("octocat"))
		Expect(got.FullName).To(Equal("octocat/dotfiles"))
	})

	It("scores a bare repository without readme, license or workflows", func() {
		got, err := an.Analyze(ctx, "acme/empty")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CodeQuality.HasReadme).To(BeFalse())
		Expect(got.CodeQuality.HasLicense).To(BeFalse())
		Expect(got.CodeQuality.HealthScore).To(BeZero())
		Expect(got.CodeQuality.HealthGrade).To(Equal("F"))
	})

	It("reports unknown repositories", func() {
		repos.getFn = func(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
			resp := &gh.Response{Response: &http.Response{StatusCode: http.StatusNotFound}}
			return nil, resp, &gh.ErrorResponse{Response: resp.Response, Message: "Not Found"}
		}
		_, err := an.Analyze(ctx, "acme/ghost")
		Expect(errors.Is(err, github.ErrRepositoryNotFound)).To(BeTrue())
	})

	It("rejects malformed repository names", func() {
		_, err := an.Analyze(ctx, "acme/api/extra")
		Expect(errors.Is(err, github.ErrInvalidRepository)).To(BeTrue())

		bare := github.NewAnalyzer(github.API{Repositories: repos, PullRequests: pulls}, github.AnalyzerConfig{}, nil)
		_, err = bare.Analyze(ctx, "api")
		Expect(errors.Is(err, github.ErrInvalidRepository)).To(BeTrue())
	})

	It("fails when the readme lookup fails for another reason", func() {
		repos.getReadmeFn = func(ctx context.Context, owner, repo string) (*gh.RepositoryContent, *gh.Response, error) {
			return nil, nil, errors.New("403 rate limit exceeded")
		}
		_, err := an.Analyze(ctx, "acme/api")
		Expect(err).To(MatchError(ContainSubstring("fetching readme of acme/api")))
	})
})

var _ = DescribeTable("HealthGrade",
	func(score int, grade string) {
		Expect(github.HealthGrade(score)).To(Equal(grade))
	},
	Entry("perfect", 100, "A"),
	Entry("three of four", 75, "C"),
	Entry("half", 50, "F"),
	Entry("boundary B", 80, "B"),
	Entry("boundary D", 60, "D"),
)
