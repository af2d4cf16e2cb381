package mcp

import "github.com/mark3labs/mcp-go/mcp"

// listCasesTool defines the list_cases MCP tool.
var listCasesTool = mcp.NewTool("list_cases",
	mcp.WithDescription("List troubleshooting cases, optionally filtered by lifecycle state or classification."),
	mcp.WithString("state",
		mcp.Description("Filter by lifecycle state"),
		mcp.Enum("intake", "normalize", "classify", "plan", "execute", "evaluate", "resolve", "ready_for_solution", "pending_external"),
	),
	mcp.WithString("classification",
		mcp.Description("Filter by classification, e.g. network or authentication"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of cases to return (default 20)"),
	),
)

// caseStatusTool defines the case_status MCP tool.
var caseStatusTool = mcp.NewTool("case_status",
	mcp.WithDescription("Get a case's current state, open questions, open hypotheses, and what blocks the next transition."),
	mcp.WithString("case_id",
		mcp.Required(),
		mcp.Description("The case id"),
	),
)

// caseReportTool defines the case_report MCP tool.
var caseReportTool = mcp.NewTool("case_report",
	mcp.WithDescription("Get the full markdown report for a case, including its timeline."),
	mcp.WithString("case_id",
		mcp.Required(),
		mcp.Description("The case id"),
	),
)

// advanceCaseTool defines the advance_case MCP tool.
var advanceCaseTool = mcp.NewTool("advance_case",
	mcp.WithDescription("Advance a case through its lifecycle. Progression stops at the first unmet gate; the blocking reason is returned instead of an error."),
	mcp.WithString("case_id",
		mcp.Required(),
		mcp.Description("The case id"),
	),
)

// answerQuestionTool defines the answer_question MCP tool.
var answerQuestionTool = mcp.NewTool("answer_question",
	mcp.WithDescription("Record an answer to one of a case's diagnostic questions."),
	mcp.WithString("case_id",
		mcp.Required(),
		mcp.Description("The case id"),
	),
	mcp.WithString("question_id",
		mcp.Required(),
		mcp.Description("The question id, e.g. q1"),
	),
	mcp.WithString("answer",
		mcp.Required(),
		mcp.Description("The answer text"),
	),
)
