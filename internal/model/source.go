package model

// SourceSystem identifies the external system an event came from.
type SourceSystem string

const (
	SourceSlack      SourceSystem = "SLACK"
	SourceJira       SourceSystem = "JIRA"
	SourceGitHub     SourceSystem = "GITHUB"
	SourceGitLab     SourceSystem = "GITLAB"
	SourceConfluence SourceSystem = "CONFLUENCE"
)

// EventType names the semantic action behind an event. Each source has its own closed set.
type EventType string

const (
	EventSlackMessagePosted       EventType = "SlackMessagePostedEvent"
	EventJiraTicketCreated        EventType = "JiraTicketCreatedEvent"
	EventJiraTicketCommentAdded   EventType = "JiraTicketCommentAddedEvent"
	EventGitHubCommitPushed       EventType = "GitHubCommitPushedEvent"
	EventGitHubPullRequestOpened  EventType = "GitHubPullRequestOpenedEvent"
	EventGitHubPullRequestUpdated EventType = "GitHubPullRequestUpdatedEvent"
	EventGitLabCommitPushed       EventType = "GitLabCommitPushedEvent"
	EventConfluencePageCreated    EventType = "ConfluencePageCreatedEvent"
	EventConfluencePageUpdated    EventType = "ConfluencePageUpdatedEvent"
)

var eventTypesBySource = map[SourceSystem][]EventType{
	SourceSlack:      {EventSlackMessagePosted},
	SourceJira:       {EventJiraTicketCreated, EventJiraTicketCommentAdded},
	SourceGitHub:     {EventGitHubCommitPushed, EventGitHubPullRequestOpened, EventGitHubPullRequestUpdated},
	SourceGitLab:     {EventGitLabCommitPushed},
	SourceConfluence: {EventConfluencePageCreated, EventConfluencePageUpdated},
}

// SourceSystems lists the known source systems in a stable order.
func SourceSystems() []SourceSystem {
	return []SourceSystem{SourceSlack, SourceJira, SourceGitHub, SourceGitLab, SourceConfluence}
}

// EventTypes lists the event types a source may emit.
func EventTypes(s SourceSystem) []EventType {
	types := eventTypesBySource[s]
	out := make([]EventType, len(types))
	copy(out, types)
	return out
}

func (s SourceSystem) Valid() bool {
	_, ok := eventTypesBySource[s]
	return ok
}

// Allows reports whether t belongs to the source's event type set.
func (s SourceSystem) Allows(t EventType) bool {
	for _, allowed := range eventTypesBySource[s] {
		if allowed == t {
			return true
		}
	}
	return false
}
