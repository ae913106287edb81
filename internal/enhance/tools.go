package enhance

import "strings"

const (
	CategoryExecution = "execution"
	CategoryFile      = "file"
	CategorySearch    = "search"
	CategorySubagent  = "subagent"
	CategoryOther     = "other"
)

// SubagentTool is the reserved tool name for nested agent tasks.
const SubagentTool = "task"

// QuestionTool is the tool the agent uses to ask the user something.
const QuestionTool = "question"

var toolCategories = map[string]string{
	"bash":  CategoryExecution,
	"read":  CategoryFile,
	"write": CategoryFile,
	"edit":  CategoryFile,
	"grep":  CategorySearch,
	"glob":  CategorySearch,
	"task":  CategorySubagent,
}

var categoryIcons = map[string]string{
	CategoryExecution: "⚡",
	CategoryFile:      "📄",
	CategorySearch:    "🔍",
	CategorySubagent:  "🤖",
	CategoryOther:     "🔧",
}

func ToolCategory(name string) string {
	if category, ok := toolCategories[strings.ToLower(strings.TrimSpace(name))]; ok {
		return category
	}
	return CategoryOther
}

func Icon(category string) string {
	if icon, ok := categoryIcons[category]; ok {
		return icon
	}
	return categoryIcons[CategoryOther]
}

func IsSubagentTool(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), SubagentTool)
}

func IsQuestionTool(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), QuestionTool)
}
