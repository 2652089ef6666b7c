package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/internal/adapter"
	"synapse.app/ingest/internal/adapter/github"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/http/router"
	"synapse.app/ingest/internal/syncer"
)

var _ = Describe("Connector API", func() {
	var (
		engine   *gin.Engine
		runner   *mockSyncRunner
		cursors  *mockCursorAdmin
		analyzer *mockAnalyzer
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		engine = gin.New()
		runner = &mockSyncRunner{}
		cursors = &mockCursorAdmin{}
		analyzer = &mockAnalyzer{}
		router.SetupConnectorRoutes(engine, runner, cursors, analyzer)
	})

	do := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	It("answers health checks", func() {
		w := do(http.MethodGet, "/health")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("Connector is healthy"))
	})

	Describe("POST /api/v1/sync", func() {
		It("returns the text summary of every adapter", func() {
			runner.runAllFn = func(ctx context.Context) []*syncer.SourceResult {
				return []*syncer.SourceResult{{
					Adapter: "slack.messages",
					Cycles:  []*syncer.CycleResult{{Scope: "C1", Outcome: syncer.OutcomeSucceeded, Fetched: 2, Delivered: 2}},
				}}
			}
			w := do(http.MethodPost, "/api/v1/sync")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(w.Body.String()).To(HavePrefix("slack.messages: succeeded (scopes=1 fetched=2 delivered=2"))
		})

		It("keeps running after the client goes away", func() {
			var cycleCtx context.Context
			runner.runAllFn = func(ctx context.Context) []*syncer.SourceResult {
				cycleCtx = ctx
				return nil
			}
			reqCtx, cancel := context.WithCancel(context.Background())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil).WithContext(reqCtx)
			engine.ServeHTTP(httptest.NewRecorder(), req)
			cancel()
			Expect(cycleCtx.Err()).NotTo(HaveOccurred())
		})
	})

	Describe("POST /api/v1/sync/:adapter", func() {
		It("runs the named adapter", func() {
			runner.runAdapterFn = func(ctx context.Context, name string) (*syncer.SourceResult, error) {
				return &syncer.SourceResult{Adapter: name}, nil
			}
			w := do(http.MethodPost, "/api/v1/sync/github.commits")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(HavePrefix("github.commits: succeeded"))
		})

		It("returns 404 for unknown adapters", func() {
			runner.runAdapterFn = func(ctx context.Context, name string) (*syncer.SourceResult, error) {
				return nil, fmt.Errorf("%w: %s", adapter.ErrUnknownAdapter, name)
			}
			Expect(do(http.MethodPost, "/api/v1/sync/jira").Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 for other failures", func() {
			runner.runAdapterFn = func(ctx context.Context, name string) (*syncer.SourceResult, error) {
				return nil, errors.New("boom")
			}
			Expect(do(http.MethodPost, "/api/v1/sync/jira").Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/v1/cursors", func() {
		It("requires source and scope", func() {
			Expect(do(http.MethodGet, "/api/v1/cursors?source=slack.messages").Code).To(Equal(http.StatusBadRequest))
		})

		It("returns a stored cursor", func() {
			at := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
			cursors.peekFn = func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
				Expect(key).To(Equal(cursor.Key{Source: "slack.messages", Scope: "C1"}))
				return cursor.Position{Time: at, Token: "1754049600.000000"}, true, nil
			}
			w := do(http.MethodGet, "/api/v1/cursors?source=slack.messages&scope=C1")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{
				"source": "slack.messages",
				"scope": "C1",
				"exists": true,
				"time": "2025-08-01T12:00:00Z",
				"token": "1754049600.000000"
			}`))
		})

		It("reports absent cursors", func() {
			w := do(http.MethodGet, "/api/v1/cursors?source=slack.messages&scope=C9")
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveKeyWithValue("exists", false))
			Expect(resp).NotTo(HaveKey("time"))
		})

		It("returns 500 when the backend fails", func() {
			cursors.peekFn = func(ctx context.Context, key cursor.Key) (cursor.Position, bool, error) {
				return cursor.Position{}, false, errors.New("redis down")
			}
			Expect(do(http.MethodGet, "/api/v1/cursors?source=a&scope=b").Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("DELETE /api/v1/cursors", func() {
		It("clears one cursor", func() {
			w := do(http.MethodDelete, "/api/v1/cursors?source=slack.messages&scope=C1")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"cleared":"slack.messages|C1"}`))
			Expect(cursors.cleared).To(ConsistOf(cursor.Key{Source: "slack.messages", Scope: "C1"}))
			Expect(cursors.clearedAll).To(BeFalse())
		})

		It("clears every cursor without parameters", func() {
			w := do(http.MethodDelete, "/api/v1/cursors")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(cursors.clearedAll).To(BeTrue())
		})

		It("rejects a lone parameter", func() {
			Expect(do(http.MethodDelete, "/api/v1/cursors?scope=C1").Code).To(Equal(http.StatusBadRequest))
			Expect(cursors.cleared).To(BeEmpty())
			Expect(cursors.clearedAll).To(BeFalse())
		})
	})

	Describe("GET /api/v1/github/analyze", func() {
		It("analyzes a repository of the configured user", func() {
			analyzer.analyzeFn = func(ctx context.Context, repository string) (*github.Analysis, error) {
				return &github.Analysis{
					Name:           repository,
					FullName:       "octocat/" + repository,
					Stars:          3,
					RecentActivity: github.Activity{Commits: 4, ActiveContributors: 2},
					CodeQuality:    github.Quality{HasReadme: true, HealthScore: 50, HealthGrade: "F"},
				}, nil
			}
			w := do(http.MethodGet, "/api/v1/github/analyze/api")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(analyzer.requested).To(Equal([]string{"api"}))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveKeyWithValue("full_name", "octocat/api"))
			Expect(resp).NotTo(HaveKey("created_at"))
			Expect(resp["recent_activity"]).To(HaveKeyWithValue("commits", BeNumerically("==", 4)))
			Expect(resp["code_quality"]).To(HaveKeyWithValue("health_grade", "F"))
		})

		It("accepts an owner", func() {
			do(http.MethodGet, "/api/v1/github/analyze/alice/api")
			Expect(analyzer.requested).To(Equal([]string{"alice/api"}))
		})

		It("maps analyzer errors to status codes", func() {
			analyzer.analyzeFn = func(ctx context.Context, repository string) (*github.Analysis, error) {
				switch repository {
				case "ghost":
					return nil, fmt.Errorf("%w: octocat/ghost", github.ErrRepositoryNotFound)
				case "bad":
					return nil, github.ErrInvalidRepository
				}
				return nil, errors.New("502 bad gateway")
			}
			Expect(do(http.MethodGet, "/api/v1/github/analyze/ghost").Code).To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/api/v1/github/analyze/bad").Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/api/v1/github/analyze/api").Code).To(Equal(http.StatusBadGateway))
		})

		It("is not mounted without GitHub", func() {
			engine = gin.New()
			router.SetupConnectorRoutes(engine, runner, cursors, nil)
			Expect(do(http.MethodGet, "/api/v1/github/analyze/api").Code).To(Equal(http.StatusNotFound))
		})
	})
})
