package enhance

import (
	"strings"

	"buildchat/internal/types"
)

// EnhanceEvent annotates a raw stream event in place with sub-agent metadata
// and the tool category. Non-tool events are returned unchanged.
func EnhanceEvent(event map[string]any) map[string]any {
	if event == nil {
		return event
	}
	if eventType, _ := event["type"].(string); eventType != types.EventMessagePartUpdated {
		return event
	}
	properties, _ := event["properties"].(map[string]any)
	part, _ := properties["part"].(map[string]any)
	if part == nil {
		return event
	}
	if partType, _ := part["type"].(string); partType != types.PartTypeTool {
		return event
	}
	toolName, _ := part["tool"].(string)
	state, _ := part["state"].(map[string]any)
	input, _ := state["input"].(map[string]any)
	status, _ := state["status"].(string)

	if IsSubagentTool(toolName) {
		subagentType, _ := input["subagent_type"].(string)
		if strings.TrimSpace(subagentType) == "" {
			subagentType = "general"
		}
		description, _ := input["description"].(string)
		event["_is_subagent"] = true
		event["_subagent_type"] = subagentType
		event["_subagent_description"] = description
		if status == types.ToolStatusCompleted {
			output, _ := state["output"].(string)
			event["_subagent_parsed"] = ParseTaskOutput(output)
		}
	}
	event["_tool_category"] = ToolCategory(toolName)
	return event
}
