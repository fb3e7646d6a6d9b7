package synthesizer_test

import (
	"context"
	"fmt"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/vectorstore"
)

type mockLLMClient struct {
	completeFn func(ctx context.Context, req llm.Request) (*llm.Response, error)
	callCount  int
	requests   []llm.Request
}

func (m *mockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.callCount++
	m.requests = append(m.requests, req)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return nil, &llm.APIError{Provider: "anthropic", Message: "unavailable"}
}

func (m *mockLLMClient) CompleteJSON(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return m.Complete(ctx, req)
}

func (m *mockLLMClient) Model() string {
	return "mock-model"
}

func jsonResponse(body string) func(context.Context, llm.Request) (*llm.Response, error) {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		data, _ := llm.ExtractJSON(body)
		return &llm.Response{Content: body, JSON: data}, nil
	}
}

type addCall struct {
	collection string
	documents  []string
	ids        []string
	metadatas  []map[string]any
}

type mockStore struct {
	vectorstore.Store
	adds []addCall
}

func (m *mockStore) Add(_ context.Context, collection string, documents, ids []string, metadatas []map[string]any) error {
	m.adds = append(m.adds, addCall{collection, documents, ids, metadatas})
	return nil
}

func analyzed(n int) []model.AnalyzedItem {
	out := make([]model.AnalyzedItem, n)
	for i := range out {
		item := model.NewItem(model.SourceHackerNews, fmt.Sprintf("https://hn/%d", i), fmt.Sprintf("Story %d", i), "c")
		out[i] = model.AnalyzedItem{Item: item, Analysis: &model.AnalysisResult{ItemID: item.ID, Summary: fmt.Sprintf("Summary %d", i)}}
	}
	return out
}
