package otel

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/core/config"
)

var _ = Describe("Setup", func() {
	It("is disabled without an endpoint", func() {
		t, err := Setup(context.Background(), config.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Enabled()).To(BeFalse())
		Expect(t.Shutdown(context.Background())).To(Succeed())
	})

	It("tolerates a nil Telemetry", func() {
		var t *Telemetry
		Expect(t.Enabled()).To(BeFalse())
		Expect(t.Shutdown(context.Background())).To(Succeed())
	})
})

var _ = Describe("parseHeaders", func() {
	It("reads comma separated pairs", func() {
		Expect(parseHeaders("Authorization=Bearer x, x-team = ingest")).To(Equal(map[string]string{
			"Authorization": "Bearer x",
			"x-team":        "ingest",
		}))
	})

	It("drops malformed pairs", func() {
		Expect(parseHeaders("")).To(BeEmpty())
		Expect(parseHeaders("novalue,=orphan,k=v=w")).To(Equal(map[string]string{"k": "v=w"}))
	})
})

var _ = Describe("signalURL", func() {
	It("joins the signal path", func() {
		Expect(signalURL("https://otlp.example.com/", "traces")).To(Equal("https://otlp.example.com/v1/traces"))
		Expect(signalURL("http://collector:4318", "logs")).To(Equal("http://collector:4318/v1/logs"))
	})
})
