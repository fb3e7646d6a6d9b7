package synthesizer_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/synthesizer"
	"basegraph.app/radar/internal/vectorstore"
)

var _ = Describe("Synthesizer", func() {
	var (
		ctx    context.Context
		client *mockLLMClient
		store  *mockStore
		s      *synthesizer.Synthesizer
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockLLMClient{}
		store = &mockStore{}
		now = time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
		s = synthesizer.New(client, store, synthesizer.Config{Persist: true}).
			WithClock(func() time.Time { return now })
	})

	Describe("Digest", func() {
		It("formats source, title and truncated summary", func() {
			items := analyzed(2)
			items[0].Analysis.Summary = strings.Repeat("s", 300)
			items[1].Analysis = nil

			digest := synthesizer.Digest(items, 50)
			Expect(digest).To(Equal(
				"- [hackernews] Story 0\n  Summary: " + strings.Repeat("s", 200) +
					"\n\n- [hackernews] Story 1"))
		})

		It("caps the number of items", func() {
			digest := synthesizer.Digest(analyzed(60), 50)
			Expect(strings.Count(digest, "- [hackernews]")).To(Equal(50))
		})
	})

	DescribeTable("WeekKey uses Monday-based week numbers",
		func(t time.Time, want string) {
			Expect(synthesizer.WeekKey(t)).To(Equal(want))
		},
		Entry("before the first Monday", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "2023-W00"),
		Entry("first Monday", time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), "2023-W01"),
		Entry("year starting on Monday", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2024-W01"),
		Entry("mid October", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), "2026-W42"),
		Entry("last day of year", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "2024-W53"),
	)

	Describe("daily", func() {
		It("uses 2048 tokens and the date from the clock", func() {
			client.completeFn = jsonResponse(`{"relevance_score": 8, "highlights": ["h"], "summary": "Good day."}`)
			result := s.SynthesizeDaily(ctx, analyzed(3))

			Expect(client.requests[0].MaxTokens).To(Equal(2048))
			Expect(client.requests[0].Timeout).To(Equal(120 * time.Second))
			Expect(client.requests[0].Prompt).To(ContainSubstring("2026-10-19"))
			Expect(result.Date).To(Equal("2026-10-19"))
			Expect(result.RelevanceScore).To(Equal(8))
			Expect(result.Highlights).To(Equal([]string{"h"}))
			Expect(result.Patterns).To(BeEmpty())
			Expect(result.Patterns).NotTo(BeNil())
			Expect(result.Degraded).To(BeFalse())
		})

		It("includes every analysed title in the prompt", func() {
			client.completeFn = jsonResponse(`{}`)
			s.SynthesizeDaily(ctx, analyzed(12))
			for i := 0; i < 12; i++ {
				Expect(client.requests[0].Prompt).To(ContainSubstring(fmt.Sprintf("- [hackernews] Story %d\n", i)))
			}
		})

		DescribeTable("clamps relevance",
			func(body string, want int) {
				client.completeFn = jsonResponse(body)
				Expect(s.SynthesizeDaily(ctx, analyzed(1)).RelevanceScore).To(Equal(want))
			},
			Entry("above range", `{"relevance_score": 42}`, 10),
			Entry("below range", `{"relevance_score": 0}`, 1),
			Entry("far above range", `{"relevance_score": 1e20}`, 10),
			Entry("far below range", `{"relevance_score": -1e20}`, 1),
			Entry("missing", `{}`, 5),
			Entry("string", `{"relevance_score": "7"}`, 7),
		)

		It("fills a missing summary", func() {
			client.completeFn = jsonResponse(`{"relevance_score": 6}`)
			Expect(s.SynthesizeDaily(ctx, analyzed(1)).Summary).To(Equal("Synthesis unavailable."))
		})

		It("degrades when the model fails", func() {
			result := s.SynthesizeDaily(ctx, analyzed(5))
			Expect(result.Degraded).To(BeTrue())
			Expect(result.RelevanceScore).To(Equal(5))
			Expect(result.Highlights).To(Equal([]string{"Story 0", "Story 1", "Story 2"}))
			Expect(result.Patterns).To(Equal([]string{"Synthesis unavailable - using fallback"}))
			Expect(result.Recommendations).To(Equal([]string{"Review items manually"}))
			Expect(result.Summary).To(Equal("Processed 5 items. Synthesis generation failed."))
		})

		It("uses fewer highlights when fewer items are given", func() {
			result := s.SynthesizeDaily(ctx, analyzed(2))
			Expect(result.Highlights).To(HaveLen(2))
			Expect(result.Summary).NotTo(BeEmpty())
		})

		It("degrades when no JSON comes back", func() {
			client.completeFn = jsonResponse("no json here")
			Expect(s.SynthesizeDaily(ctx, analyzed(1)).Degraded).To(BeTrue())
		})
	})

	Describe("weekly", func() {
		It("accepts story objects and bare titles", func() {
			client.completeFn = jsonResponse(`{
				"relevance_score": 7,
				"top_stories": [{"title": "A", "significance": "big"}, "B", {"significance": "untitled"}],
				"trends": ["t"],
				"summary": "Week."
			}`)
			result := s.SynthesizeWeekly(ctx, analyzed(3))
			Expect(client.requests[0].MaxTokens).To(Equal(3000))
			Expect(result.Week).To(Equal("2026-W42"))
			Expect(result.TopStories).To(Equal([]model.Story{{Title: "A", Significance: "big"}, {Title: "B"}}))
			Expect(result.CompetitiveMoves).To(BeEmpty())
		})

		It("degrades to the first five stories", func() {
			result := s.SynthesizeWeekly(ctx, analyzed(8))
			Expect(result.Degraded).To(BeTrue())
			Expect(result.TopStories).To(HaveLen(5))
			Expect(result.TopStories[0]).To(Equal(model.Story{Title: "Story 0"}))
			Expect(result.Summary).To(Equal("Weekly synthesis for 2026-W42. Processed 8 items."))
			Expect(result.Recommendations).To(Equal([]string{"Review items manually"}))
		})
	})

	Describe("monthly", func() {
		It("uses 4096 tokens, the long timeout and up to 100 items", func() {
			client.completeFn = jsonResponse(`{"major_developments": [{"title": "M", "impact": "high", "timeline": "now"}], "trend_analysis": "up"}`)
			result := s.SynthesizeMonthly(ctx, analyzed(120))

			req := client.requests[0]
			Expect(req.MaxTokens).To(Equal(4096))
			Expect(req.Timeout).To(Equal(300 * time.Second))
			Expect(strings.Count(req.Prompt, "- [hackernews]")).To(Equal(100))
			Expect(result.Month).To(Equal("2026-10"))
			Expect(result.MajorDevelopments).To(Equal([]model.Development{{Title: "M", Impact: "high", Timeline: "now"}}))
			Expect(result.TrendAnalysis).To(Equal("up"))
		})

		It("degrades to the first ten developments", func() {
			result := s.SynthesizeMonthly(ctx, analyzed(12))
			Expect(result.Degraded).To(BeTrue())
			Expect(result.MajorDevelopments).To(HaveLen(10))
			Expect(result.TrendAnalysis).To(Equal("Monthly synthesis unavailable."))
			Expect(result.Summary).To(Equal("Monthly synthesis for 2026-10. Processed 12 items."))
			Expect(result.RelevanceScore).To(Equal(5))
		})
	})

	Describe("persistence", func() {
		It("stores a successful synthesis under its mode and period", func() {
			client.completeFn = jsonResponse(`{"summary": "Stored."}`)
			s.SynthesizeMonthly(ctx, analyzed(1))

			Expect(store.adds).To(HaveLen(2))
			Expect(store.adds[0].collection).To(Equal(vectorstore.CollectionSynthesis))
			Expect(store.adds[0].ids).To(Equal([]string{"synthesis_monthly_2026-10"}))
			Expect(store.adds[0].documents).To(Equal([]string{"Stored."}))
			Expect(store.adds[0].metadatas[0]).To(Equal(map[string]any{"mode": "monthly", "period": "2026-10"}))
		})

		It("snapshots the items behind a weekly synthesis", func() {
			client.completeFn = jsonResponse(`{"summary": "Week."}`)
			s.SynthesizeWeekly(ctx, analyzed(2))

			Expect(store.adds).To(HaveLen(2))
			snap := store.adds[1]
			Expect(snap.collection).To(Equal(vectorstore.CollectionSnapshots))
			Expect(snap.ids[0]).To(HavePrefix("snapshot_weekly_2026-W"))
			Expect(snap.documents[0]).To(ContainSubstring("Story 0"))
			Expect(snap.documents[0]).To(ContainSubstring("Story 1"))
			Expect(snap.metadatas[0]).To(HaveKeyWithValue("item_count", 2))
		})

		It("does not snapshot a daily synthesis", func() {
			client.completeFn = jsonResponse(`{"summary": "Day."}`)
			s.SynthesizeDaily(ctx, analyzed(1))

			Expect(store.adds).To(HaveLen(1))
			Expect(store.adds[0].collection).To(Equal(vectorstore.CollectionSynthesis))
		})

		It("does not store a degraded synthesis", func() {
			s.SynthesizeDaily(ctx, analyzed(1))
			Expect(store.adds).To(BeEmpty())
		})
	})

	Describe("Synthesize", func() {
		It("dispatches by mode", func() {
			result, err := s.Synthesize(ctx, model.ModeWeekly, analyzed(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Mode()).To(Equal(model.ModeWeekly))
			Expect(result.IsDegraded()).To(BeTrue())
		})

		It("rejects an unknown mode", func() {
			_, err := s.Synthesize(ctx, model.Mode("hourly"), analyzed(1))
			Expect(err).To(HaveOccurred())
			Expect(client.callCount).To(Equal(0))
		})
	})
})
