package llm

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

const fence = "```"

// ExtractJSON recovers a JSON document from model output. It tries, in order,
// the whole trimmed content, the first ```json block and the first generic
// fenced block (whose opening line may carry a language tag).
func ExtractJSON(content string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, false
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), true
	}

	if block, ok := fencedBlock(trimmed, fence+"json", false); ok && json.Valid([]byte(block)) {
		return json.RawMessage(block), true
	}

	if block, ok := fencedBlock(trimmed, fence, true); ok && json.Valid([]byte(block)) {
		return json.RawMessage(block), true
	}

	return nil, false
}

func fencedBlock(content, open string, skipTag bool) (string, bool) {
	start := strings.Index(content, open)
	if start < 0 {
		return "", false
	}
	rest := content[start+len(open):]

	if skipTag {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			tag := strings.TrimSpace(rest[:nl])
			if !strings.ContainsAny(tag, "{[") {
				rest = rest[nl+1:]
			}
		}
	}

	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// GenerateSchema reflects a JSON schema for T.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// SchemaPrompt renders the schema for T as indented JSON for inclusion in a prompt.
func SchemaPrompt[T any]() string {
	data, err := json.MarshalIndent(GenerateSchema[T](), "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
