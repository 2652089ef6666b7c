package dto

import "time"

type CursorQuery struct {
	Source string `form:"source" binding:"required"`
	Scope  string `form:"scope" binding:"required"`
}

type CursorResponse struct {
	Source string     `json:"source"`
	Scope  string     `json:"scope"`
	Exists bool       `json:"exists"`
	Time   *time.Time `json:"time,omitempty"`
	Token  string     `json:"token,omitempty"`
}

type ClearCursorsResponse struct {
	Cleared string `json:"cleared"`
}

type TestDataQuery struct {
	Source string `form:"source"`
	Count  int    `form:"count" binding:"gte=0,lte=1000"`
}

type RepositoryAnalysisResponse struct {
	Name           string            `json:"name"`
	FullName       string            `json:"full_name"`
	Description    string            `json:"description,omitempty"`
	Language       string            `json:"language,omitempty"`
	Stars          int               `json:"stars"`
	Forks          int               `json:"forks"`
	OpenIssues     int               `json:"open_issues"`
	Size           int               `json:"size"`
	CreatedAt      *time.Time        `json:"created_at,omitempty"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
	PushedAt       *time.Time        `json:"pushed_at,omitempty"`
	RecentActivity RecentActivityDTO `json:"recent_activity"`
	CodeQuality    CodeQualityDTO    `json:"code_quality"`
}

type RecentActivityDTO struct {
	Since              time.Time `json:"since"`
	Commits            int       `json:"commits"`
	ActiveContributors int       `json:"active_contributors"`
	PullRequests       int       `json:"pull_requests"`
}

type CodeQualityDTO struct {
	HasReadme   bool   `json:"has_readme"`
	HasLicense  bool   `json:"has_license"`
	LicenseName string `json:"license_name,omitempty"`
	HasActions  bool   `json:"has_github_actions"`
	HealthScore int    `json:"health_score"`
	HealthGrade string `json:"health_grade"`
}
