package id_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"synapse.app/ingest/common/id"
)

var _ = Describe("run ids", func() {
	It("are unique", func() {
		seen := map[string]bool{}
		for range 1000 {
			runID := id.NewRunID()
			Expect(seen).NotTo(HaveKey(runID))
			seen[runID] = true
		}
	})

	It("encode their creation time", func() {
		before := time.Now().Add(-time.Second)
		at, err := id.RunTime(id.NewRunID())
		Expect(err).NotTo(HaveOccurred())
		Expect(at).To(BeTemporally(">=", before.Truncate(time.Millisecond)))
		Expect(at).To(BeTemporally("<=", time.Now().Add(time.Second)))
	})

	It("rejects malformed ids", func() {
		_, err := id.RunTime("0OIl")
		Expect(err).To(MatchError(ContainSubstring("parse run id")))
	})

	It("ignores a second Init", func() {
		Expect(id.Init(5000)).To(Succeed())
	})
})
