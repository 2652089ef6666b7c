package main

import (
	"fmt"
	"log/slog"
	"time"

	"synapse.app/ingest/core/config"
	"synapse.app/ingest/internal/adapter"
	ghadapter "synapse.app/ingest/internal/adapter/github"
	gladapter "synapse.app/ingest/internal/adapter/gitlab"
	slackadapter "synapse.app/ingest/internal/adapter/slack"
	"synapse.app/ingest/internal/cursor"
	"synapse.app/ingest/internal/http/handler"
	"synapse.app/ingest/internal/worker"
)

// source is one configured adapter with the settings the sources file may
// override.
type source struct {
	adapter  adapter.Adapter
	scopes   *adapter.ScopeSet
	interval time.Duration
	lookback time.Duration
}

// buildSources creates every adapter whose credentials are configured and
// applies the sources file overrides.
func buildSources(cfg config.Config, overrides *config.SourcesFile, log *slog.Logger) ([]source, error) {
	var sources []source

	if cfg.GitHub.Enabled() {
		api, err := ghadapter.NewAPI(cfg.GitHub.Token, cfg.GitHub.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github client: %w", err)
		}

		commitScopes := adapter.NewScopeSet(cfg.GitHub.Repositories...)
		commits := source{
			scopes:   commitScopes,
			interval: cfg.GitHub.Interval,
			lookback: cfg.GitHub.CommitLookback,
		}
		applyOverride(&commits, overrides, ghadapter.CommitsAdapterName)
		commits.adapter = ghadapter.NewCommitsAdapter(api.Repositories, ghadapter.CommitsConfig{
			Scopes:     commitScopes,
			Username:   cfg.GitHub.Username,
			Lookback:   commits.lookback,
			FetchStats: true,
		}, log)
		sources = append(sources, commits)

		if cfg.GitHub.PullRequestsSync {
			pullScopes := adapter.NewScopeSet(cfg.GitHub.Repositories...)
			pulls := source{
				scopes:   pullScopes,
				interval: cfg.GitHub.Interval,
				lookback: cfg.GitHub.PullLookback,
			}
			applyOverride(&pulls, overrides, ghadapter.PullsAdapterName)
			pulls.adapter = ghadapter.NewPullsAdapter(api, ghadapter.PullsConfig{
				Scopes:   pullScopes,
				Username: cfg.GitHub.Username,
				Lookback: pulls.lookback,
			}, log)
			sources = append(sources, pulls)
		}
	}

	if cfg.GitLab.Enabled() {
		client, err := gladapter.NewClient(cfg.GitLab.Token, cfg.GitLab.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("gitlab client: %w", err)
		}
		scopes := adapter.NewScopeSet(cfg.GitLab.Projects...)
		s := source{scopes: scopes, interval: cfg.GitLab.Interval, lookback: cfg.GitLab.Lookback}
		applyOverride(&s, overrides, gladapter.CommitsAdapterName)
		s.adapter = gladapter.NewCommitsAdapter(client.Commits, client.Projects, gladapter.Config{
			Scopes:   scopes,
			Lookback: s.lookback,
		}, log)
		sources = append(sources, s)
	}

	if cfg.Slack.Enabled() {
		scopes := adapter.NewScopeSet(cfg.Slack.Channels...)
		s := source{scopes: scopes, interval: cfg.Slack.Interval, lookback: cfg.Slack.Lookback}
		applyOverride(&s, overrides, slackadapter.MessagesAdapterName)
		s.adapter = slackadapter.NewMessagesAdapter(slackadapter.NewClient(cfg.Slack.BotToken, cfg.Slack.APIURL), slackadapter.Config{
			Scopes:   scopes,
			Lookback: s.lookback,
		}, log)
		sources = append(sources, s)
	}

	enabled := sources[:0]
	for _, s := range sources {
		if o, ok := overrides.Override(s.adapter.Name()); ok && o.Disabled {
			log.Info("adapter disabled by sources file", "adapter", s.adapter.Name())
			continue
		}
		enabled = append(enabled, s)
	}
	return enabled, nil
}

func applyOverride(s *source, overrides *config.SourcesFile, name string) {
	o, ok := overrides.Override(name)
	if !ok {
		return
	}
	if len(o.Scopes) > 0 {
		s.scopes.Replace(o.Scopes)
	}
	if o.Interval > 0 {
		s.interval = o.Interval
	}
	if o.Lookback > 0 {
		s.lookback = o.Lookback
	}
}

// rescope applies a reloaded sources file to running adapters. Adapters the
// file does not name keep their scopes.
func rescope(sources []source, f *config.SourcesFile, log *slog.Logger) {
	for _, s := range sources {
		o, ok := f.Override(s.adapter.Name())
		if !ok || len(o.Scopes) == 0 {
			continue
		}
		s.scopes.Replace(o.Scopes)
		log.Info("adapter scopes reloaded", "adapter", s.adapter.Name(), "scopes", s.scopes.List())
	}
}

func jobs(sources []source) []worker.Job {
	out := make([]worker.Job, 0, len(sources))
	for _, s := range sources {
		out = append(out, worker.Job{Adapter: s.adapter, Interval: s.interval})
	}
	return out
}

// lookbacks seeds each adapter's first-run window from the adapter itself.
func lookbacks(sources []source) []cursor.Option {
	out := make([]cursor.Option, 0, len(sources))
	for _, s := range sources {
		out = append(out, cursor.WithLookback(s.adapter.Name(), s.adapter.Lookback()))
	}
	return out
}

// analyzer serves the GitHub repository analysis, or nil without a GitHub token.
func analyzer(cfg config.Config, log *slog.Logger) (handler.RepositoryAnalyzer, error) {
	if !cfg.GitHub.Enabled() {
		return nil, nil
	}
	api, err := ghadapter.NewAPI(cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	return ghadapter.NewAnalyzer(api, ghadapter.AnalyzerConfig{Username: cfg.GitHub.Username}, log), nil
}
