package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"time"

	"synapse.app/ingest/internal/model"
)

var ErrUnknownTestSource = errors.New("unknown test data source")

// Default event counts per generated source.
const (
	DefaultSlackCount  = 10
	DefaultJiraCount   = 5
	DefaultGitHubCount = 8
)

type TestDataResult struct {
	Source     string `json:"source"`
	Requested  int    `json:"requested"`
	Ingested   int    `json:"ingested"`
	Duplicated int    `json:"duplicated"`
	Failed     int    `json:"failed"`
}

// TestDataService fabricates plausible events and feeds them through the
// regular ingestion path.
type TestDataService interface {
	Generate(ctx context.Context, source string, count int) ([]TestDataResult, error)
}

type testDataService struct {
	ingest EventIngestService
	rng    *mrand.Rand
	now    func() time.Time
	logger *slog.Logger
}

func NewTestDataService(ingest EventIngestService, logger *slog.Logger) TestDataService {
	if logger == nil {
		logger = slog.Default()
	}
	return &testDataService{
		ingest: ingest,
		rng:    mrand.New(mrand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:    time.Now,
		logger: logger,
	}
}

// Generate accepts slack, jira, github or all. A non-positive count uses the
// per-source default.
func (s *testDataService) Generate(ctx context.Context, source string, count int) ([]TestDataResult, error) {
	var sources []string
	switch strings.ToLower(source) {
	case "slack", "jira", "github":
		sources = []string{strings.ToLower(source)}
	case "all", "":
		sources = []string{"slack", "jira", "github"}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTestSource, source)
	}

	results := make([]TestDataResult, 0, len(sources))
	for _, src := range sources {
		n := count
		if n <= 0 {
			n = defaultCount(src)
		}
		var drafts []model.Draft
		switch src {
		case "slack":
			drafts = s.slackDrafts(n)
		case "jira":
			drafts = s.jiraDrafts(n)
		case "github":
			drafts = s.githubDrafts(n)
		}

		res := TestDataResult{Source: src, Requested: n}
		for _, d := range drafts {
			r, err := s.ingest.Ingest(ctx, d)
			switch {
			case err != nil:
				res.Failed++
				s.logger.WarnContext(ctx, "test event rejected", "source", src, "error", err)
			case r.Duplicated:
				res.Duplicated++
			default:
				res.Ingested++
			}
		}
		s.logger.InfoContext(ctx, "generated test events", "source", src, "ingested", res.Ingested, "failed", res.Failed)
		results = append(results, res)
	}
	return results, nil
}

func defaultCount(source string) int {
	switch source {
	case "slack":
		return DefaultSlackCount
	case "jira":
		return DefaultJiraCount
	default:
		return DefaultGitHubCount
	}
}

var (
	slackUsers    = []string{"nikola.sevic", "john.doe", "jane.smith", "mike.johnson", "sarah.wilson"}
	slackChannels = []string{"general", "development", "random", "synapse-project", "tech-talk"}
	slackMessages = []string{
		"Hey team, how's the new feature coming along?",
		"I just pushed the latest changes to the repo. Please review when you get a chance.",
		"The database migration completed successfully in production.",
		"Can someone help me debug this issue with the API endpoints?",
		"I think we should consider using Redis for caching in the next iteration.",
		"Don't forget about the sprint retrospective tomorrow at 2 PM.",
		"The performance improvements are working great! Response times down by 40%.",
		"I've updated the documentation with the new API changes.",
	}

	jiraPeople   = []string{"nikola.sevic@company.com", "john.doe@company.com", "jane.smith@company.com"}
	jiraProjects = []string{"SYNAPSE", "AUTH", "API", "FRONTEND", "INFRA"}
	jiraTypes    = []string{"Bug", "Story", "Task", "Epic"}
	jiraStatuses = []string{"Open", "In Progress", "Review", "Done"}
	jiraTitles   = []string{
		"Fix authentication timeout issues",
		"Implement new user dashboard",
		"Optimize database queries for better performance",
		"Add unit tests for payment processing",
		"Implement rate limiting for API endpoints",
		"Refactor legacy code in user management module",
	}
	jiraComments = []string{
		"I can take a look at this issue tomorrow.",
		"Good catch! This needs to be prioritized for the next release.",
		"The fix has been deployed to staging. Please test when you get a chance.",
		"I've created a pull request with the proposed solution.",
	}

	githubAuthors  = []string{"sevkic", "john-dev", "jane-smith", "mike-johnson"}
	githubRepos    = []string{"synapse-project", "auth-service", "api-gateway", "frontend-app"}
	githubMessages = []string{
		"Fix: Resolve authentication timeout issues in login flow",
		"Feature: Add new user dashboard with activity tracking",
		"Test: Add comprehensive unit tests for payment processing",
		"Security: Add rate limiting to prevent API abuse",
		"Refactor: Clean up legacy code in user management module",
		"Hotfix: Critical bug fix for payment processing",
	}
)

func pick[T any](r *mrand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

func (s *testDataService) ago(within time.Duration) time.Time {
	return s.now().Add(-time.Duration(s.rng.Int64N(int64(within))))
}

func (s *testDataService) slackDrafts(n int) []model.Draft {
	drafts := make([]model.Draft, 0, n)
	for range n {
		ts := s.ago(time.Hour)
		payload := map[string]any{
			"user":          pick(s.rng, slackUsers),
			"text":          pick(s.rng, slackMessages),
			"channel":       pick(s.rng, slackChannels),
			"timestamp":     strconv.FormatInt(ts.Unix(), 10),
			"isThreadReply": s.rng.IntN(2) == 0,
		}
		if payload["isThreadReply"].(bool) {
			payload["threadTimestamp"] = strconv.FormatInt(s.ago(2*time.Hour).Unix(), 10)
		}
		drafts = append(drafts, s.draft(model.SourceSlack, model.EventSlackMessagePosted, "MSG_"+randomHex(4), ts, payload))
	}
	return drafts
}

func (s *testDataService) jiraDrafts(n int) []model.Draft {
	drafts := make([]model.Draft, 0, n)
	for range n {
		project := pick(s.rng, jiraProjects)
		ticketID := fmt.Sprintf("%s-%d", project, 100+s.rng.IntN(900))
		created := s.ago(7 * 24 * time.Hour)
		url := "https://company.atlassian.net/browse/" + ticketID
		priority := "Medium"
		if s.rng.IntN(2) == 0 {
			priority = "High"
		}
		drafts = append(drafts, s.draft(model.SourceJira, model.EventJiraTicketCreated, ticketID, created, map[string]any{
			"author":      pick(s.rng, jiraPeople),
			"title":       pick(s.rng, jiraTitles),
			"description": "Generated ticket for local testing.",
			"status":      pick(s.rng, jiraStatuses),
			"ticketType":  pick(s.rng, jiraTypes),
			"project":     project,
			"url":         url,
			"priority":    priority,
			"assignee":    pick(s.rng, jiraPeople),
		}))

		if s.rng.IntN(2) == 0 {
			commentNo := s.rng.IntN(1000)
			drafts = append(drafts, s.draft(model.SourceJira, model.EventJiraTicketCommentAdded,
				fmt.Sprintf("%s_COMMENT_%d", ticketID, commentNo),
				created.Add(time.Duration(s.rng.IntN(48))*time.Hour),
				map[string]any{
					"author":   pick(s.rng, jiraPeople),
					"comment":  pick(s.rng, jiraComments),
					"ticketId": ticketID,
					"url":      fmt.Sprintf("%s#comment-%d", url, commentNo),
				}))
		}
	}
	return drafts
}

func (s *testDataService) githubDrafts(n int) []model.Draft {
	drafts := make([]model.Draft, 0, n)
	for range n {
		repo := pick(s.rng, githubRepos)
		sha := randomHex(20)
		branch := "develop"
		if s.rng.IntN(2) == 0 {
			branch = "main"
		}
		drafts = append(drafts, s.draft(model.SourceGitHub, model.EventGitHubCommitPushed, sha, s.ago(3*24*time.Hour), map[string]any{
			"author":       pick(s.rng, githubAuthors),
			"message":      pick(s.rng, githubMessages),
			"repository":   repo,
			"commitId":     sha,
			"url":          "https://github.com/sevkic/" + repo + "/commit/" + sha,
			"branch":       branch,
			"filesChanged": s.rng.IntN(10) + 1,
			"additions":    s.rng.IntN(200) + 1,
			"deletions":    s.rng.IntN(50),
		}))
	}
	return drafts
}

func (s *testDataService) draft(src model.SourceSystem, typ model.EventType, entityID string, ts time.Time, payload map[string]any) model.Draft {
	data, _ := model.MarshalPayload(payload)
	return model.Draft{
		Timestamp:      ts,
		SourceSystem:   src,
		SourceEntityID: entityID,
		EventType:      typ,
		Payload:        data,
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
