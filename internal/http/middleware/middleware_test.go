package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"synapse.app/ingest/internal/http/middleware"
	"synapse.app/ingest/internal/metrics"
)

var _ = Describe("middleware", func() {
	var engine *gin.Engine

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	BeforeEach(func() {
		engine = gin.New()
		engine.Use(middleware.Recovery(), middleware.Logger())
		engine.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
		engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })
		engine.GET("/late-boom", func(c *gin.Context) {
			c.String(http.StatusAccepted, "partial")
			panic("after write")
		})
	})

	Describe("Logger", func() {
		It("counts requests by route template", func() {
			counter := metrics.HTTPRequests.WithLabelValues("/items/:id", "GET", "200")
			before := testutil.ToFloat64(counter)

			serve(http.MethodGet, "/items/1")
			serve(http.MethodGet, "/items/2")

			Expect(testutil.ToFloat64(counter) - before).To(Equal(2.0))
		})

		It("labels unknown paths as unmatched", func() {
			counter := metrics.HTTPRequests.WithLabelValues("unmatched", "GET", "404")
			before := testutil.ToFloat64(counter)

			Expect(serve(http.MethodGet, "/nope").Code).To(Equal(http.StatusNotFound))
			Expect(testutil.ToFloat64(counter) - before).To(Equal(1.0))
		})
	})

	Describe("Recovery", func() {
		It("answers a panic with a JSON 500", func() {
			before := testutil.ToFloat64(metrics.HTTPPanics)

			rec := serve(http.MethodGet, "/boom")
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(MatchJSON(`{"error":"internal server error"}`))
			Expect(testutil.ToFloat64(metrics.HTTPPanics) - before).To(Equal(1.0))
		})

		It("keeps a response that was already written", func() {
			rec := serve(http.MethodGet, "/late-boom")
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(rec.Body.String()).To(Equal("partial"))
		})
	})
})
