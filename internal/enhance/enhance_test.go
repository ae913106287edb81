package enhance

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildchat/internal/types"
)

func TestToolCategoryAndIcon(t *testing.T) {
	tests := []struct {
		tool     string
		category string
	}{
		{"bash", CategoryExecution},
		{"Read", CategoryFile},
		{"edit", CategoryFile},
		{"glob", CategorySearch},
		{"task", CategorySubagent},
		{"webfetch", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.category, ToolCategory(tt.tool), tt.tool)
	}
	assert.Equal(t, Icon(CategoryOther), Icon("unknown"))
	assert.True(t, IsSubagentTool(" Task "))
	assert.True(t, IsQuestionTool("question"))
}

func TestParseTaskOutput(t *testing.T) {
	output := strings.Join([]string{
		"# Report",
		"Explored the level loader and fixed the spawn bug.",
		"[bash] npm test",
		"Using grep tool to find callers",
		"Reading `src/level.js` then Read src/player.js",
		"Wrote src/level.js and Created assets/map.json",
		"Tool: Webfetch",
	}, "\n")

	summary := ParseTaskOutput(output)
	assert.Equal(t, []string{"bash", "grep"}, summary.Tools)
	assert.Equal(t, []string{"src/level.js", "src/player.js"}, summary.FilesRead)
	assert.Equal(t, []string{"assets/map.json", "src/level.js"}, summary.FilesWritten)
	assert.False(t, summary.HasErrors)
	assert.Equal(t, "Explored the level loader and fixed the spawn bug. Using grep tool to find callers Reading `src/level.js` then Read src/player.js", summary.Summary)
}

func TestParseTaskOutputEmptyAndErrors(t *testing.T) {
	empty := ParseTaskOutput("")
	assert.Empty(t, empty.Tools)
	assert.NotNil(t, empty.FilesRead)
	assert.Equal(t, "", empty.Summary)

	failed := ParseTaskOutput("build FAILED: unable to resolve module")
	assert.True(t, failed.HasErrors)

	long := ParseTaskOutput(strings.Repeat("x", 500))
	assert.Len(t, []rune(long.Summary), 300)
}

func TestEnhanceEventMarksSubagentTasks(t *testing.T) {
	raw := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type":"message.part.updated",
		"properties":{"part":{"id":"p1","type":"tool","tool":"task","state":{
			"status":"completed",
			"input":{"subagent_type":"explore","description":"map the repo"},
			"output":"Called read tool\nDone."}}}}`), &raw))

	EnhanceEvent(raw)
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	var event types.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.True(t, event.IsSubagent)
	assert.Equal(t, "explore", event.SubagentType)
	assert.Equal(t, "map the repo", event.SubagentDescription)
	assert.Equal(t, CategorySubagent, event.ToolCategory)
	require.NotNil(t, event.SubagentParsed)
	assert.Equal(t, []string{"read"}, event.SubagentParsed.Tools)
}

func TestEnhanceEventLeavesOtherEventsAlone(t *testing.T) {
	text := map[string]any{
		"type":       "message.part.updated",
		"properties": map[string]any{"part": map[string]any{"type": "text", "text": "hi"}},
	}
	EnhanceEvent(text)
	_, marked := text["_tool_category"]
	assert.False(t, marked)

	bash := map[string]any{
		"type": "message.part.updated",
		"properties": map[string]any{"part": map[string]any{
			"type": "tool", "tool": "bash", "state": map[string]any{"status": "running"},
		}},
	}
	EnhanceEvent(bash)
	assert.Equal(t, CategoryExecution, bash["_tool_category"])
	_, sub := bash["_is_subagent"]
	assert.False(t, sub)

	pending := map[string]any{
		"type": "message.part.updated",
		"properties": map[string]any{"part": map[string]any{
			"type": "tool", "tool": "task", "state": map[string]any{"status": "pending"},
		}},
	}
	EnhanceEvent(pending)
	assert.Equal(t, "general", pending["_subagent_type"])
	_, parsed := pending["_subagent_parsed"]
	assert.False(t, parsed)
	assert.Nil(t, EnhanceEvent(nil))
}
