package synthesizer

import "basegraph.app/radar/common/llm"

var (
	dailySchema   = llm.SchemaPrompt[wireDaily]()
	weeklySchema  = llm.SchemaPrompt[wireWeekly]()
	monthlySchema = llm.SchemaPrompt[wireMonthly]()
)

const systemPrompt = `You are a strategy analyst for a team building on Claude. You turn many small signals into a short, opinionated briefing.`

const dailyPrompt = `Synthesize today's signals into a strategic digest.

Items analyzed today (%s):
%s

Total items: %d

Focus on what matters most for someone building with Claude, patterns that
individual items do not show, and actionable intelligence.

Reply with JSON only, matching this schema:
%s`

const weeklyPrompt = `Synthesize this week's signals into a strategic report.

Week: %s
Items this week: %d

%s

Focus on patterns and changes visible over the week.

Reply with JSON only, matching this schema:
%s`

const monthlyPrompt = `Write a monthly intelligence report.

Month: %s
Items this month: %d

%s

Focus on strategic intelligence and predictions for next month.

Reply with JSON only, matching this schema:
%s`
