package analyzer

import "basegraph.app/radar/common/llm"

var analysisSchema = llm.SchemaPrompt[wireAnalysis]()

const systemPrompt = `You are a senior engineer tracking the AI tooling ecosystem. You write precise, practical analyses for developers building on Claude.`

const analysisPrompt = `Analyze this item and give a structured analysis.

Title: %s
Source: %s
URL: %s
Content:
%s

Focus on what is actually new or changed, the practical implications for
developers using Claude, and how it connects to broader ecosystem trends.

Reply with JSON only, matching this schema:
%s`
