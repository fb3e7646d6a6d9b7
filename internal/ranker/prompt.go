package ranker

import "basegraph.app/radar/common/llm"

var entrySchema = llm.SchemaPrompt[[]entry]()

const systemPrompt = `You triage a stream of technical content for an engineer who builds products on large language models. You are strict: most routine updates are low signal.`

const rankingPrompt = `Rank these %d items by signal strength.

For every item give:
- signal_score (1-10): 1-3 routine, 4-6 useful, 7-8 significant, 9-10 a major shift
- impact: one of tooling, architecture, research, production, ecosystem
- maturity: one of experimental, early, growing, stable, legacy
- reasoning: one sentence

Items:
%s

Reply with a JSON array only, one object per item, matching this schema:
%s`
