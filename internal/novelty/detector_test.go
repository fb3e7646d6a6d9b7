package novelty_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/novelty"
	"basegraph.app/radar/internal/vectorstore"
)

var _ = Describe("Detector", func() {
	var (
		ctx   context.Context
		store *mockStore
		det   *novelty.Detector
		item  *model.CollectedItem
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &mockStore{}
		det = novelty.New(store, novelty.Config{Threshold: 0.3, MaxDistance: 2.0, DuplicateSimilarity: 0.8})
		item = model.NewItem(model.SourceBlogs, "https://b/1", "Title", strings.Repeat("x", 1500))
	})

	Describe("ComputeNovelty", func() {
		It("is exactly 1.0 with no history", func() {
			Expect(det.ComputeNovelty(ctx, item)).To(Equal(1.0))
		})

		It("searches the items collection with title and truncated content", func() {
			var gotCollection string
			var gotN int
			store.searchFn = func(_ context.Context, _ string, collection string, n int) (*vectorstore.SearchResult, error) {
				gotCollection, gotN = collection, n
				return nil, nil
			}
			det.ComputeNovelty(ctx, item)
			Expect(gotCollection).To(Equal("items"))
			Expect(gotN).To(Equal(5))
			Expect(store.queries[0]).To(Equal("Title\n" + strings.Repeat("x", 1000)))
		})

		DescribeTable("maps the closest distance to novelty",
			func(ds []float64, want float64) {
				store.searchFn = distances(ds...)
				Expect(det.ComputeNovelty(ctx, item)).To(BeNumerically("~", want, 1e-9))
			},
			Entry("exact match", []float64{0}, 0.0),
			Entry("half way", []float64{1.0}, 0.5),
			Entry("uses the minimum", []float64{1.6, 0.4, 1.0}, 0.2),
			Entry("beyond max distance", []float64{3.5}, 1.0),
		)

		It("is 0.5 when the store fails", func() {
			store.searchFn = func(context.Context, string, string, int) (*vectorstore.SearchResult, error) {
				return nil, errors.New("connection refused")
			}
			Expect(det.ComputeNovelty(ctx, item)).To(Equal(0.5))
		})

		It("is 0.5 for a malformed result", func() {
			store.searchFn = func(context.Context, string, string, int) (*vectorstore.SearchResult, error) {
				return &vectorstore.SearchResult{IDs: [][]string{{"a"}}, Distances: [][]float64{{0.1, 0.2}}}, nil
			}
			Expect(det.ComputeNovelty(ctx, item)).To(Equal(0.5))
		})

		It("honours a configured max distance", func() {
			narrow := novelty.New(store, novelty.Config{Threshold: 0.3, MaxDistance: 1.0})
			store.searchFn = distances(0.5)
			Expect(narrow.ComputeNovelty(ctx, item)).To(BeNumerically("~", 0.5, 1e-9))
		})
	})

	Describe("CheckNovelty", func() {
		It("passes items above the threshold", func() {
			store.searchFn = distances(0.8)
			ok, score := det.CheckNovelty(ctx, item)
			Expect(score).To(BeNumerically("~", 0.4, 1e-9))
			Expect(ok).To(BeTrue())
		})

		It("rejects items below the threshold", func() {
			store.searchFn = distances(0.2)
			ok, _ := det.CheckNovelty(ctx, item)
			Expect(ok).To(BeFalse())
		})

		It("keeps everything with a zero threshold", func() {
			keepAll := novelty.New(store, novelty.Config{Threshold: 0, MaxDistance: 2.0})
			store.searchFn = distances(0.2)
			ok, score := keepAll.CheckNovelty(ctx, item)
			Expect(score).To(BeNumerically("~", 0.1, 1e-9))
			Expect(ok).To(BeTrue())
		})

		It("falls back to the default threshold when it is negative", func() {
			d := novelty.New(store, novelty.Config{Threshold: -1})
			store.searchFn = distances(0.2)
			ok, _ := d.CheckNovelty(ctx, item)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("FilterNovel", func() {
		It("keeps novel items in order and records their score", func() {
			seen := model.NewItem(model.SourceBlogs, "https://b/seen", "Seen", "c")
			fresh1 := model.NewItem(model.SourceBlogs, "https://b/a", "Fresh A", "c")
			fresh2 := model.NewItem(model.SourceBlogs, "https://b/b", "Fresh B", "c")
			store.searchFn = func(_ context.Context, query string, _ string, _ int) (*vectorstore.SearchResult, error) {
				if strings.HasPrefix(query, "Seen") {
					return distances(0.1)(ctx, "", "", 0)
				}
				return nil, nil
			}

			out := det.FilterNovel(ctx, []*model.CollectedItem{fresh1, seen, fresh2})
			Expect(out).To(Equal([]*model.CollectedItem{fresh1, fresh2}))
			Expect(*fresh1.NoveltyScore).To(Equal(1.0))
			Expect(seen.NoveltyScore).To(BeNil())
		})
	})

	Describe("DetectDuplicates", func() {
		var items []*model.CollectedItem

		BeforeEach(func() {
			items = nil
			for i := 0; i < 3; i++ {
				items = append(items, model.NewItem(model.SourceReddit, fmt.Sprintf("https://r/%d", i), fmt.Sprintf("T%d", i), "c"))
			}
		})

		It("reports pairs at or above the threshold with the earlier item first", func() {
			store.embeddingsFn = func(_ context.Context, texts []string) ([][]float32, error) {
				Expect(texts[0]).To(Equal("T0\nc"))
				return [][]float32{{1, 0}, {0, 1}, {1, 0}}, nil
			}
			dups := det.DetectDuplicates(ctx, items, novelty.UseConfigured)
			Expect(dups).To(HaveLen(1))
			Expect(dups[0].A).To(Equal(items[0]))
			Expect(dups[0].B).To(Equal(items[2]))
			Expect(dups[0].Similarity).To(BeNumerically("~", 1, 1e-9))

			kept, removed := novelty.DropDuplicates(items, dups)
			Expect(removed).To(Equal(1))
			Expect(kept).To(Equal(items[:2]))
		})

		It("flags every pair when the configured similarity is zero", func() {
			d := novelty.New(store, novelty.Config{Threshold: 0.3, MaxDistance: 2.0, DuplicateSimilarity: 0})
			store.embeddingsFn = func(context.Context, []string) ([][]float32, error) {
				return [][]float32{{1, 0}, {0, 1}, {1, 0}}, nil
			}
			Expect(d.DetectDuplicates(ctx, items, novelty.UseConfigured)).To(HaveLen(3))
		})

		It("is empty when embedding fails", func() {
			store.embeddingsFn = func(context.Context, []string) ([][]float32, error) {
				return nil, errors.New("rate limited")
			}
			Expect(det.DetectDuplicates(ctx, items, 0.5)).To(BeEmpty())
		})

		It("is empty when the embedding count is wrong", func() {
			store.embeddingsFn = func(context.Context, []string) ([][]float32, error) {
				return [][]float32{{1}}, nil
			}
			Expect(det.DetectDuplicates(ctx, items, 0.5)).To(BeEmpty())
		})
	})

	It("computes cosine similarity with a zero-norm guard", func() {
		Expect(novelty.CosineSimilarity([]float32{3, 4}, []float32{3, 4})).To(BeNumerically("~", 1, 1e-9))
		Expect(novelty.CosineSimilarity([]float32{0, 0}, []float32{3, 4})).To(Equal(0.0))
	})

	It("works against the in-memory store end to end", func() {
		mem := vectorstore.NewMemoryStore(vectorstore.NewHashingEmbedder(256))
		d := novelty.New(mem, novelty.DefaultConfig())
		Expect(d.ComputeNovelty(ctx, item)).To(Equal(1.0))

		text := item.Title + "\n" + item.Content[:1000]
		Expect(mem.Add(ctx, vectorstore.CollectionItems, []string{text}, []string{item.ID}, nil)).To(Succeed())
		Expect(d.ComputeNovelty(ctx, item)).To(BeNumerically("<", 0.01))
	})

	It("remembers items so the next cycle sees them as known", func() {
		mem := vectorstore.NewMemoryStore(vectorstore.NewHashingEmbedder(256))
		d := novelty.New(mem, novelty.DefaultConfig())
		Expect(item.SetSignal(8, model.ImpactTooling, model.MaturityGrowing)).To(Succeed())

		Expect(d.Remember(ctx, nil)).To(Succeed())
		Expect(d.Remember(ctx, []*model.CollectedItem{item})).To(Succeed())

		Expect(mem.Count(ctx, vectorstore.CollectionItems)).To(Equal(1))
		Expect(d.ComputeNovelty(ctx, item)).To(BeNumerically("<", 0.01))

		res, err := mem.Search(ctx, item.Title, vectorstore.CollectionItems, 1, map[string]any{"source_type": "blogs"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IDs[0]).To(Equal([]string{item.ID}))
		Expect(res.Metadatas[0][0]).To(HaveKeyWithValue("signal_score", 8))
	})
})
