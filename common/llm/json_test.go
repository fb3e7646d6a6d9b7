package llm_test

import (
	"encoding/json"

	"basegraph.app/radar/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractJSON", func() {
	DescribeTable("recovers json from model output",
		func(content, expected string) {
			data, ok := llm.ExtractJSON(content)
			Expect(ok).To(BeTrue())
			Expect(data).To(MatchJSON(expected))
		},
		Entry("bare object", `{"a":1}`, `{"a":1}`),
		Entry("bare array with whitespace", "  \n[1, 2]\n", `[1,2]`),
		Entry("json fenced block", "```json\n{\"a\":1}\n```", `{"a":1}`),
		Entry("json block after prose", "Here you go:\n```json\n{\"b\": [true]}\n```\nThanks", `{"b":[true]}`),
		Entry("generic fence", "```\n{\"c\":\"x\"}\n```", `{"c":"x"}`),
		Entry("generic fence with language tag", "```javascript\n[{\"d\":2}]\n```", `[{"d":2}]`),
		Entry("single line generic fence", "```{\"e\":3}```", `{"e":3}`),
	)

	DescribeTable("gives up on unusable output",
		func(content string) {
			data, ok := llm.ExtractJSON(content)
			Expect(ok).To(BeFalse())
			Expect(data).To(BeNil())
		},
		Entry("empty", ""),
		Entry("prose", "I could not rank these items."),
		Entry("broken fenced json", "```json\n{\"a\":\n```"),
		Entry("unterminated fence", "```json\n{\"a\":1}"),
	)

	It("decodes into typed values through the response", func() {
		data, ok := llm.ExtractJSON("```json\n{\"a\":1}\n```")
		Expect(ok).To(BeTrue())

		resp := &llm.Response{JSON: data}
		var out map[string]int
		Expect(resp.DecodeJSON(&out)).To(Succeed())
		Expect(out).To(Equal(map[string]int{"a": 1}))
	})

	It("reports ErrParse when decoding an empty response", func() {
		resp := &llm.Response{Content: "nothing"}
		var out map[string]any
		Expect(resp.DecodeJSON(&out)).To(MatchError(llm.ErrParse))
	})
})

var _ = Describe("SchemaPrompt", func() {
	type sample struct {
		Score int    `json:"score" jsonschema_description:"1-10"`
		Label string `json:"label"`
	}

	It("renders a json schema with the field names", func() {
		schema := llm.SchemaPrompt[sample]()
		Expect(json.Valid([]byte(schema))).To(BeTrue())
		Expect(schema).To(ContainSubstring(`"score"`))
		Expect(schema).To(ContainSubstring(`"label"`))
	})
})
