package example

type SourceSystem string

const (
	SourceGitHub SourceSystem = "GITHUB"
	SourceSlack  SourceSystem = "SLACK"
)

type EventType string

const (
	EventGitHubCommitPushed EventType = "GitHubCommitPushedEvent"
)

type CursorBackend string

const (
	CursorBackendRedis CursorBackend = "redis"
)

type Draft struct {
	SourceSystem SourceSystem
	EventType    EventType
}

type ConnectorConfig struct {
	CursorBackend CursorBackend
}

func bad() {
	d := &Draft{}
	d.SourceSystem = "BITBUCKET" // want "enum field SourceSystem assigned string literal"

	c := &ConnectorConfig{}
	c.CursorBackend = "etcd" // want "enum field CursorBackend assigned string literal"

	_ = Draft{
		SourceSystem: SourceSlack,
		EventType:    "SlackReactionAdded", // want "enum field EventType assigned string literal"
	}
}

func good() {
	d := &Draft{}
	d.SourceSystem = SourceGitHub // OK: using constant
	d.EventType = EventGitHubCommitPushed

	c := &ConnectorConfig{}
	c.CursorBackend = CursorBackendRedis // OK: using constant
}

func alsoGood() {
	// OK: Variable, not literal
	source := SourceGitHub
	d := &Draft{SourceSystem: source}
	_ = d
}
