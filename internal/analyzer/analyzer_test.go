package analyzer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/internal/analyzer"
	"basegraph.app/radar/internal/model"
)

var _ = Describe("Analyzer", func() {
	var (
		ctx    context.Context
		client *mockLLMClient
		store  *mockStore
		a      *analyzer.Analyzer
		item   *model.CollectedItem
		slept  []time.Duration
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockLLMClient{}
		store = &mockStore{}
		slept = nil
		a = analyzer.New(client, store, analyzer.Config{RequestDelay: 5 * time.Second, Persist: true}).
			WithSleep(func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			})
		item = model.NewItem(model.SourceGitHubRepos, "https://github.com/x/y", "x/y v2.0", "Big release. With details.")
	})

	Describe("Analyze", func() {
		It("sends a truncated prompt with max tokens 1024", func() {
			item.Content = strings.Repeat("y", 5000)
			a.Analyze(ctx, item)

			req := client.requests[0]
			Expect(req.MaxTokens).To(Equal(1024))
			Expect(req.ExpectJSON).To(BeTrue())
			Expect(req.Prompt).To(ContainSubstring("https://github.com/x/y"))
			Expect(req.Prompt).To(ContainSubstring(strings.Repeat("y", 4000)))
			Expect(req.Prompt).NotTo(ContainSubstring(strings.Repeat("y", 4001)))
		})

		It("maps the model's analysis", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return jsonResponse(`{
					"summary": "A release.",
					"key_insights": ["one", "two"],
					"technical_details": "gRPC",
					"relevance_to_claude": "Uses tool calling",
					"actionability": "HIGH",
					"related_topics": ["sdk"],
					"confidence": 0.8
				}`), nil
			}
			res := a.Analyze(ctx, item)
			Expect(res.ItemID).To(Equal(item.ID))
			Expect(res.Summary).To(Equal("A release."))
			Expect(res.KeyInsights).To(Equal([]string{"one", "two"}))
			Expect(res.TechnicalDetails).To(Equal("gRPC"))
			Expect(res.Relevance).To(Equal("Uses tool calling"))
			Expect(res.Actionability).To(Equal(model.ActionabilityHigh))
			Expect(res.Confidence).To(Equal(0.8))
			Expect(res.Fallback).To(BeFalse())
		})

		DescribeTable("applies defaults and clamps",
			func(body string, check func(*model.AnalysisResult)) {
				client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
					return jsonResponse(body), nil
				}
				check(a.Analyze(ctx, item))
			},
			Entry("empty object", `{}`, func(r *model.AnalysisResult) {
				Expect(r.Summary).To(Equal("Unable to generate summary."))
				Expect(r.Actionability).To(Equal(model.ActionabilityMedium))
				Expect(r.Confidence).To(Equal(0.7))
				Expect(r.Relevance).To(BeEmpty())
				Expect(r.KeyInsights).To(BeEmpty())
				Expect(r.Fallback).To(BeFalse())
			}),
			Entry("confidence above 1", `{"confidence": 1.7}`, func(r *model.AnalysisResult) {
				Expect(r.Confidence).To(Equal(1.0))
			}),
			Entry("negative confidence", `{"confidence": -0.2}`, func(r *model.AnalysisResult) {
				Expect(r.Confidence).To(Equal(0.0))
			}),
			Entry("invalid actionability", `{"actionability": "urgent"}`, func(r *model.AnalysisResult) {
				Expect(r.Actionability).To(Equal(model.ActionabilityMedium))
			}),
		)

		It("persists a successful analysis", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return jsonResponse(`{"summary": "S", "key_insights": ["i1", "i2"], "actionability": "low", "confidence": 0.6}`), nil
			}
			a.Analyze(ctx, item)

			Expect(store.adds).To(HaveLen(1))
			add := store.adds[0]
			Expect(add.collection).To(Equal("analysis"))
			Expect(add.ids).To(Equal([]string{"analysis_" + item.ID}))
			Expect(add.documents).To(Equal([]string{"S\ni1\ni2"}))
			Expect(add.metadatas[0]).To(Equal(map[string]any{
				"item_id":       item.ID,
				"source_type":   "github_repos",
				"actionability": "low",
				"confidence":    0.6,
			}))
		})

		It("swallows persistence failures", func() {
			store.addErr = errors.New("db down")
			res := a.Analyze(ctx, item)
			Expect(res.Fallback).To(BeFalse())
		})

		It("does not persist when disabled", func() {
			quiet := analyzer.New(client, store, analyzer.Config{})
			quiet.Analyze(ctx, item)
			Expect(store.adds).To(BeEmpty())
		})

		DescribeTable("falls back",
			func(fn func(context.Context, llm.Request) (*llm.Response, error)) {
				client.completeFn = fn
				res := a.Analyze(ctx, item)
				Expect(res.Fallback).To(BeTrue())
				Expect(res.Summary).To(Equal("Big release."))
				Expect(res.KeyInsights).To(Equal([]string{"Analysis unavailable - using fallback"}))
				Expect(res.Relevance).To(Equal("Unable to assess"))
				Expect(res.RelatedTopics).To(Equal([]string{"github_repos"}))
				Expect(res.Confidence).To(Equal(0.3))
				Expect(res.Actionability).To(Equal(model.ActionabilityMedium))
				Expect(store.adds).To(BeEmpty())
			},
			Entry("on a client error", func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, &llm.APIError{Provider: "anthropic", StatusCode: 400, Message: "bad request"}
			}),
			Entry("on a timeout", func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, &llm.TimeoutError{Model: "m", After: time.Second}
			}),
			Entry("without json", func(context.Context, llm.Request) (*llm.Response, error) {
				return &llm.Response{Content: "prose only"}, nil
			}),
			Entry("on mistyped json", func(context.Context, llm.Request) (*llm.Response, error) {
				return jsonResponse(`{"confidence": "very"}`), nil
			}),
			Entry("on a panic", func(context.Context, llm.Request) (*llm.Response, error) {
				panic("provider exploded")
			}),
		)
	})

	Describe("Fallback", func() {
		It("uses the title when there is no content", func() {
			item.Content = ""
			Expect(analyzer.Fallback(item).Summary).To(Equal("x/y v2.0"))
		})

		It("adds a period when the content has none", func() {
			item.Content = "no sentence end"
			Expect(analyzer.Fallback(item).Summary).To(Equal("no sentence end."))
		})

		It("truncates the summary to 500 characters", func() {
			item.Content = strings.Repeat("z", 900)
			Expect(analyzer.Fallback(item).Summary).To(HaveLen(500))
		})
	})

	Describe("AnalyzeBatch", func() {
		var items []*model.CollectedItem

		BeforeEach(func() {
			items = nil
			for i := 0; i < 4; i++ {
				items = append(items, model.NewItem(model.SourceBlogs, fmt.Sprintf("https://b/%d", i), fmt.Sprintf("Post %d", i), "Body."))
			}
		})

		It("preserves order and pauses only between items", func() {
			out := a.AnalyzeBatch(ctx, items)
			Expect(out).To(HaveLen(4))
			for i, pair := range out {
				Expect(pair.Item).To(Equal(items[i]))
				Expect(pair.Analysis.ItemID).To(Equal(items[i].ID))
			}
			Expect(slept).To(HaveLen(3))
			Expect(slept[0]).To(Equal(5 * time.Second))
		})

		It("returns a fallback for every item when the model always fails", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, errors.New("unreachable")
			}
			out := a.AnalyzeBatch(ctx, items)
			Expect(out).To(HaveLen(4))
			for _, pair := range out {
				Expect(pair.Analysis).NotTo(BeNil())
				Expect(pair.Analysis.Confidence).To(Equal(0.3))
			}
		})

		It("returns nothing for no items", func() {
			Expect(a.AnalyzeBatch(ctx, nil)).To(BeEmpty())
			Expect(client.callCount).To(Equal(0))
		})
	})
})
