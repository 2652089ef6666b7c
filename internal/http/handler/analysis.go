package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"synapse.app/ingest/internal/adapter/github"
	"synapse.app/ingest/internal/http/dto"
)

type RepositoryAnalyzer interface {
	Analyze(ctx context.Context, repository string) (*github.Analysis, error)
}

type AnalysisHandler struct {
	analyzer RepositoryAnalyzer
}

func NewAnalysisHandler(analyzer RepositoryAnalyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// Analyze reports on :name, or on :name/:repo when an owner is given.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	ctx := c.Request.Context()
	repository := c.Param("name")
	if repo := c.Param("repo"); repo != "" {
		repository += "/" + repo
	}

	a, err := h.analyzer.Analyze(ctx, repository)
	switch {
	case errors.Is(err, github.ErrInvalidRepository):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, github.ErrRepositoryNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		slog.ErrorContext(ctx, "repository analysis failed", "repository", repository, "error", err)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "repository analysis failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.RepositoryAnalysisResponse{
		Name:        a.Name,
		FullName:    a.FullName,
		Description: a.Description,
		Language:    a.Language,
		Stars:       a.Stars,
		Forks:       a.Forks,
		OpenIssues:  a.OpenIssues,
		Size:        a.Size,
		CreatedAt:   optionalTime(a.CreatedAt),
		UpdatedAt:   optionalTime(a.UpdatedAt),
		PushedAt:    optionalTime(a.PushedAt),
		RecentActivity: dto.RecentActivityDTO{
			Since:              a.RecentActivity.Since,
			Commits:            a.RecentActivity.Commits,
			ActiveContributors: a.RecentActivity.ActiveContributors,
			PullRequests:       a.RecentActivity.PullRequests,
		},
		CodeQuality: dto.CodeQualityDTO{
			HasReadme:   a.CodeQuality.HasReadme,
			HasLicense:  a.CodeQuality.HasLicense,
			LicenseName: a.CodeQuality.LicenseName,
			HasActions:  a.CodeQuality.HasActions,
			HealthScore: a.CodeQuality.HealthScore,
			HealthGrade: a.CodeQuality.HealthGrade,
		},
	})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
