package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/core/config"
)

var _ = Describe("Fields", func() {
	It("overlays non-empty values", func() {
		ctx := logger.WithCycle(context.Background(), "slack.messages", "C1", "run-1")
		ctx = logger.WithEvent(ctx, "evt-1", "SlackMessagePostedEvent")
		ctx = logger.WithFields(ctx, logger.Fields{Scope: "C2"})

		Expect(logger.FieldsFrom(ctx)).To(Equal(logger.Fields{
			Source:    "slack.messages",
			Scope:     "C2",
			RunID:     "run-1",
			EventID:   "evt-1",
			EventType: "SlackMessagePostedEvent",
		}))
	})

	It("is empty for a bare context", func() {
		Expect(logger.FieldsFrom(context.Background())).To(BeZero())
	})
})

var _ = Describe("TraceHandler", func() {
	It("adds context fields to records", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

		ctx := logger.WithCycle(context.Background(), "github.commits", "acme/api", "run-7")
		ctx = logger.WithComponent(ctx, "synapse.syncer.orchestrator")
		log.InfoContext(ctx, "cycle done")

		var rec map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &rec)).To(Succeed())
		Expect(rec).To(HaveKeyWithValue("source", "github.commits"))
		Expect(rec).To(HaveKeyWithValue("scope", "acme/api"))
		Expect(rec).To(HaveKeyWithValue("run_id", "run-7"))
		Expect(rec).To(HaveKeyWithValue("component", "synapse.syncer.orchestrator"))
		Expect(rec).NotTo(HaveKey("event_id"))
		Expect(rec).NotTo(HaveKey("trace_id"))
	})

	It("keeps decorating after WithAttrs", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("service", "connector")

		log.InfoContext(logger.WithEvent(context.Background(), "evt-9", ""), "delivered")

		var rec map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &rec)).To(Succeed())
		Expect(rec).To(HaveKeyWithValue("service", "connector"))
		Expect(rec).To(HaveKeyWithValue("event_id", "evt-9"))
		Expect(rec).NotTo(HaveKey("event_type"))
	})
})

var _ = Describe("New", func() {
	BeforeEach(func() {
		prev, had := os.LookupEnv("LOG_LEVEL")
		Expect(os.Unsetenv("LOG_LEVEL")).To(Succeed())
		DeferCleanup(func() {
			if had {
				_ = os.Setenv("LOG_LEVEL", prev)
			} else {
				_ = os.Unsetenv("LOG_LEVEL")
			}
		})
	})

	It("logs debug in development", func() {
		var buf bytes.Buffer
		log := logger.New(config.Config{Env: "development"}, &buf)
		log.Debug("fetching page")
		Expect(buf.String()).To(ContainSubstring("fetching page"))
	})

	It("writes JSON tagged with the service in production", func() {
		var buf bytes.Buffer
		log := logger.New(config.Config{Env: "production", OTel: config.OTelConfig{ServiceName: "synapse-server"}}, &buf)
		log.Debug("hidden")
		log.Info("visible")

		var rec map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &rec)).To(Succeed())
		Expect(rec).To(HaveKeyWithValue("msg", "visible"))
		Expect(rec).To(HaveKeyWithValue("service", "synapse-server"))
	})

	It("honors LOG_LEVEL", func() {
		Expect(os.Setenv("LOG_LEVEL", "warn")).To(Succeed())
		var buf bytes.Buffer
		log := logger.New(config.Config{Env: "development"}, &buf)
		log.Info("quiet")
		Expect(buf.String()).To(BeEmpty())
	})
})

var _ = Describe("Truncate", func() {
	It("leaves short strings alone", func() {
		Expect(logger.Truncate("abc", 3)).To(Equal("abc"))
	})

	It("cuts on a rune boundary", func() {
		Expect(logger.Truncate("héllo", 2)).To(Equal("h..."))
		Expect(logger.Truncate("hello world", 5)).To(Equal("hello..."))
	})
})

var _ = Describe("Span", func() {
	It("continues a remote trace id", func() {
		sp := logger.ContinueTrace(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "ingest.event")
		defer sp.End()
		Expect(sp.TraceID()).To(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
	})

	It("starts fresh on a malformed trace id", func() {
		sp := logger.ContinueTrace(context.Background(), "not-hex", "ingest.event")
		defer sp.End()
		sp.RecordError(nil)
		Expect(sp.TraceID()).To(BeEmpty())
	})
})
