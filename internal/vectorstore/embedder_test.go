package vectorstore_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/vectorstore"
)

var _ = Describe("HashingEmbedder", func() {
	It("is deterministic and unit length", func() {
		e := vectorstore.NewHashingEmbedder(64)
		a, err := e.Embed(context.Background(), []string{"Claude Code hooks", "Claude Code hooks"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a[0]).To(Equal(a[1]))
		Expect(vectorstore.CosineSimilarity(a[0], a[1])).To(BeNumerically("~", 1, 1e-6))
	})

	It("returns a zero vector for text without tokens", func() {
		e := vectorstore.NewHashingEmbedder(8)
		v, _ := e.Embed(context.Background(), []string{"  ...  "})
		Expect(v[0]).To(Equal(make([]float32, 8)))
	})
})

var _ = Describe("CachedEmbedder", func() {
	It("only sends misses to the wrapped embedder", func() {
		inner := &countingEmbedder{}
		cached := vectorstore.NewCachedEmbedder(inner, time.Minute)

		first, err := cached.Embed(context.Background(), []string{"a", "bb"})
		Expect(err).NotTo(HaveOccurred())
		second, err := cached.Embed(context.Background(), []string{"bb", "ccc", "a"})
		Expect(err).NotTo(HaveOccurred())

		Expect(inner.callCount).To(Equal(2))
		Expect(inner.seen[1]).To(Equal([]string{"ccc"}))
		Expect(second[0]).To(Equal(first[1]))
		Expect(second[2]).To(Equal(first[0]))
		Expect(second[1]).To(Equal([]float32{3, 1}))
	})

	It("does not cache failures", func() {
		inner := &countingEmbedder{embedFn: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("boom")
		}}
		cached := vectorstore.NewCachedEmbedder(inner, time.Minute)

		_, err := cached.Embed(context.Background(), []string{"a"})
		Expect(err).To(HaveOccurred())
		_, err = cached.Embed(context.Background(), []string{"a"})
		Expect(err).To(HaveOccurred())
		Expect(inner.callCount).To(Equal(2))
	})
})

var _ = Describe("factories", func() {
	It("requires an API key for openai embeddings", func() {
		_, err := vectorstore.NewEmbedder(config.EmbeddingsConfig{Provider: "openai"})
		Expect(err).To(HaveOccurred())
	})

	It("builds a memory store over the hashing embedder", func() {
		e, err := vectorstore.NewEmbedder(config.EmbeddingsConfig{Provider: "hashing", Dimensions: 32})
		Expect(err).NotTo(HaveOccurred())
		s, err := vectorstore.New(config.VectorStoreConfig{Backend: "memory"}, nil, e)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeAssignableToTypeOf(&vectorstore.MemoryStore{}))
	})

	It("refuses pgvector without a database", func() {
		_, err := vectorstore.New(config.VectorStoreConfig{Backend: "pgvector"}, nil, vectorstore.NewHashingEmbedder(8))
		Expect(err).To(HaveOccurred())
	})
})
