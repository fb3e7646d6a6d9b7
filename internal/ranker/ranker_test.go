package ranker_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/ranker"
)

var _ = Describe("Ranker", func() {
	var (
		ctx    context.Context
		client *mockLLMClient
		r      *ranker.Ranker
		slept  []time.Duration
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockLLMClient{}
		slept = nil
		r = ranker.New(client, ranker.Config{
			BatchSize:  10,
			BatchDelay: 3 * time.Second,
			Threshold:  4,
			Fallback:   ranker.DefaultFallbackPolicy(),
		}).WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		})
	})

	Describe("RankBatch", func() {
		It("returns nothing and makes no call for an empty batch", func() {
			Expect(r.RankBatch(ctx, nil)).To(BeEmpty())
			Expect(client.callCount).To(Equal(0))
		})

		It("enumerates items by index in one prompt with max tokens 4096", func() {
			items := makeItems(2, model.SourceReddit)
			r.RankBatch(ctx, items)

			Expect(client.callCount).To(Equal(1))
			req := client.requests[0]
			Expect(req.MaxTokens).To(Equal(4096))
			Expect(req.Temperature).To(HaveValue(BeNumerically("~", 0.2)))
			Expect(req.ExpectJSON).To(BeTrue())
			Expect(req.Prompt).To(ContainSubstring("[0] **Item 0**\nSource: reddit\ncontent"))
			Expect(req.Prompt).To(ContainSubstring("[1] **Item 1**"))
		})

		It("maps a bare array back by index", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return jsonResponse(`[
					{"index": 1, "signal_score": 9, "impact": "research", "maturity": "early", "reasoning": "big"},
					{"index": 0, "signal_score": 2, "impact": "tooling", "maturity": "stable"}
				]`), nil
			}
			ranked := r.RankBatch(ctx, makeItems(2, model.SourceBlogs))

			Expect(ranked).To(HaveLen(2))
			Expect(ranked[0].SignalScore).To(Equal(2))
			Expect(ranked[0].Impact).To(Equal(model.ImpactTooling))
			Expect(ranked[1].SignalScore).To(Equal(9))
			Expect(ranked[1].Maturity).To(Equal(model.MaturityEarly))
			Expect(ranked[1].Reasoning).To(Equal("big"))
		})

		DescribeTable("accepts wrapped responses",
			func(body string) {
				client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
					return jsonResponse(body), nil
				}
				ranked := r.RankBatch(ctx, makeItems(1, model.SourceBlogs))
				Expect(ranked[0].SignalScore).To(Equal(8))
			},
			Entry("rankings key", `{"rankings": [{"index": 0, "signal_score": 8}]}`),
			Entry("items key", `{"items": [{"index": 0, "signal_score": 8}]}`),
			Entry("fenced block", "Here you go:\n```json\n[{\"index\": 0, \"signal_score\": 8}]\n```"),
			Entry("single object", `{"index": 0, "signal_score": 8}`),
		)

		DescribeTable("clamps and validates fields",
			func(body string, score int, impact model.Impact, maturity model.Maturity) {
				client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
					return jsonResponse(body), nil
				}
				ranked := r.RankBatch(ctx, makeItems(1, model.SourceBlogs))
				Expect(ranked[0].SignalScore).To(Equal(score))
				Expect(ranked[0].Impact).To(Equal(impact))
				Expect(ranked[0].Maturity).To(Equal(maturity))
			},
			Entry("score above range", `[{"index":0,"signal_score":15,"impact":"tooling","maturity":"stable"}]`, 10, model.ImpactTooling, model.MaturityStable),
			Entry("score below range", `[{"index":0,"signal_score":-3,"impact":"tooling","maturity":"stable"}]`, 1, model.ImpactTooling, model.MaturityStable),
			Entry("score far above range", `[{"index":0,"signal_score":1e20,"impact":"tooling","maturity":"stable"}]`, 10, model.ImpactTooling, model.MaturityStable),
			Entry("score far below range", `[{"index":0,"signal_score":-1e20}]`, 1, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("huge numeric string score", `[{"index":0,"signal_score":"1e20"}]`, 10, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("non-numeric score", `[{"index":0,"signal_score":"high"}]`, 5, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("numeric string score", `[{"index":0,"signal_score":"8"}]`, 8, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("fractional score", `[{"index":0,"signal_score":7.9}]`, 7, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("invalid impact", `[{"index":0,"signal_score":6,"impact":"vibes"}]`, 6, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("invalid maturity", `[{"index":0,"signal_score":6,"maturity":"ancient"}]`, 6, model.ImpactEcosystem, model.MaturityGrowing),
			Entry("missing entry", `[]`, 5, model.ImpactEcosystem, model.MaturityGrowing),
		)

		It("ignores out-of-range and duplicate indices", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return jsonResponse(`[
					{"index": 0, "signal_score": 9},
					{"index": 0, "signal_score": 1},
					{"index": 7, "signal_score": 1}
				]`), nil
			}
			ranked := r.RankBatch(ctx, makeItems(2, model.SourceBlogs))
			Expect(ranked[0].SignalScore).To(Equal(9))
			Expect(ranked[1].SignalScore).To(Equal(5))
		})

		Context("when the model is unavailable", func() {
			BeforeEach(func() {
				client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
					return nil, &llm.APIError{Provider: "anthropic", StatusCode: 500, Message: "boom"}
				}
			})

			It("scores by source type and priority label", func() {
				labelled := model.NewItem(model.SourceReddit, "https://r/1", "labelled", "c")
				labelled.Metadata["has_priority_label"] = true
				items := []*model.CollectedItem{
					model.NewItem(model.SourceBlogs, "https://b", "blog", "c"),
					model.NewItem(model.SourceDocs, "https://d", "docs", "c"),
					model.NewItem(model.SourceGitHubSignals, "https://s", "signals", "c"),
					model.NewItem(model.SourceGitHubEmerging, "https://e", "emerging", "c"),
					labelled,
				}

				ranked := r.RankBatch(ctx, items)
				scores := []int{}
				for _, ri := range ranked {
					scores = append(scores, ri.SignalScore)
					Expect(ri.Reasoning).To(Equal("Fallback ranking (model unavailable)"))
					Expect(ri.Fallback).To(BeTrue())
					Expect(ri.Impact).To(Equal(model.ImpactEcosystem))
					Expect(ri.Maturity).To(Equal(model.MaturityGrowing))
				}
				Expect(scores).To(Equal([]int{5, 6, 6, 7, 7}))
			})

			It("honours a configured policy", func() {
				custom := ranker.New(client, ranker.Config{
					Fallback: ranker.FallbackPolicy{Priority: []model.SourceType{model.SourceBlogs}},
				})
				ranked := custom.RankBatch(ctx, makeItems(1, model.SourceBlogs))
				Expect(ranked[0].SignalScore).To(Equal(7))
			})
		})

		It("falls back when no JSON comes back", func() {
			client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return &llm.Response{Content: "I cannot rank these."}, nil
			}
			ranked := r.RankBatch(ctx, makeItems(2, model.SourceDocs))
			Expect(ranked).To(HaveLen(2))
			Expect(ranked[0].Fallback).To(BeTrue())
			Expect(ranked[0].SignalScore).To(Equal(6))
		})
	})

	Describe("RankAll", func() {
		It("batches and pauses only between batches", func() {
			ranked := r.RankAll(ctx, makeItems(25, model.SourceBlogs))
			Expect(ranked).To(HaveLen(25))
			Expect(client.callCount).To(Equal(3))
			Expect(slept).To(Equal([]time.Duration{3 * time.Second, 3 * time.Second}))
		})

		It("does not pause for a single batch", func() {
			r.RankAll(ctx, makeItems(10, model.SourceBlogs))
			Expect(client.callCount).To(Equal(1))
			Expect(slept).To(BeEmpty())
		})

		It("falls back for the rest when the pause is interrupted", func() {
			r.WithSleep(func(context.Context, time.Duration) error { return context.Canceled })
			ranked := r.RankAll(ctx, makeItems(15, model.SourceBlogs))
			Expect(ranked).To(HaveLen(15))
			Expect(client.callCount).To(Equal(1))
			Expect(ranked[14].Fallback).To(BeTrue())
		})
	})

	Describe("Filter", func() {
		It("keeps scores at or above the threshold, in order, idempotently", func() {
			items := makeItems(4, model.SourceBlogs)
			ranked := []ranker.RankedItem{
				{Item: items[0], SignalScore: 3},
				{Item: items[1], SignalScore: 4},
				{Item: items[2], SignalScore: 9},
				{Item: items[3], SignalScore: 1},
			}
			once := r.Filter(ranked)
			Expect(once).To(HaveLen(2))
			Expect(once[0].Item).To(Equal(items[1]))
			Expect(once[1].Item).To(Equal(items[2]))
			Expect(r.Filter(once)).To(Equal(once))
		})
	})

	Describe("ApplyScores", func() {
		It("writes the verdict onto each item", func() {
			items := makeItems(1, model.SourceBlogs)
			out := r.ApplyScores(ctx, []ranker.RankedItem{{
				Item: items[0], SignalScore: 8, Impact: model.ImpactProduction, Maturity: model.MaturityStable,
			}})
			Expect(out).To(HaveLen(1))
			Expect(*out[0].SignalScore).To(Equal(8))
			Expect(*out[0].Impact).To(Equal(model.ImpactProduction))
			Expect(*out[0].Maturity).To(Equal(model.MaturityStable))
		})

		It("keeps an existing verdict", func() {
			items := makeItems(1, model.SourceBlogs)
			Expect(items[0].SetSignal(2, model.ImpactTooling, model.MaturityEarly)).To(Succeed())
			r.ApplyScores(ctx, []ranker.RankedItem{{Item: items[0], SignalScore: 9}})
			Expect(*items[0].SignalScore).To(Equal(2))
		})
	})

	It("treats a cancelled context like any other failure", func() {
		client.completeFn = func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, context.Canceled
		}
		Expect(r.RankBatch(ctx, makeItems(1, model.SourceDocs))[0].Fallback).To(BeTrue())
	})
})
