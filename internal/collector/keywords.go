package collector

import (
	"regexp"
	"strings"
)

var aiKeywords = []string{
	"claude", "anthropic", "llm", "llms", "gpt", "ai", "machine learning",
	"neural", "transformer", "prompt", "agent", "agents", "rag", "embedding",
	"embeddings", "openai", "deepmind", "huggingface", "langchain",
	"artificial intelligence", "nlp", "computer vision", "deep learning",
	"tensorflow", "pytorch", "chatgpt", "copilot", "code generation", "llama",
	"mistral", "mcp",
}

// Keywords match on word boundaries so "ai" does not fire on "maintain".
var aiKeywordPattern = func() *regexp.Regexp {
	quoted := make([]string, len(aiKeywords))
	for i, k := range aiKeywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}()

func isAIRelevant(texts ...string) bool {
	return aiKeywordPattern.MatchString(strings.ToLower(strings.Join(texts, " ")))
}
