package enhance

import (
	"regexp"
	"sort"
	"strings"

	"buildchat/internal/types"
)

const (
	maxListedFiles    = 10
	summaryLineBudget = 5
	summarySoftLimit  = 200
	summaryHardLimit  = 300
)

var (
	toolPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Called|Using|Executed|Running|Invoking)\s+(\w+)(?:\s+tool)?`),
		regexp.MustCompile(`\[(\w+)\]`),
		regexp.MustCompile(`(?i)Tool:\s*(\w+)`),
	}
	readPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)(?:Reading|Read|Opened)\\s+[`\"']?([^\\s`\"']+\\.\\w+)[`\"']?"),
		regexp.MustCompile(`(?i)File:\s*([^\s]+\.\w+)`),
	}
	writePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)(?:Writing|Wrote|Created|Modified|Updated)\\s+[`\"']?([^\\s`\"']+\\.\\w+)[`\"']?"),
	}
	errorPattern = regexp.MustCompile(`(?i)error|failed|exception|unable to`)

	knownSubagentTools = map[string]struct{}{
		"bash": {}, "read": {}, "write": {}, "edit": {}, "grep": {}, "glob": {}, "task": {},
	}
)

// ParseTaskOutput digests the free-form output of a sub-agent task into the
// tools it used, the files it touched and a short summary.
func ParseTaskOutput(output string) types.TaskSummary {
	summary := types.TaskSummary{
		Tools:        []string{},
		FilesRead:    []string{},
		FilesWritten: []string{},
	}
	if output == "" {
		return summary
	}

	tools := map[string]struct{}{}
	for _, pattern := range toolPatterns {
		for _, match := range pattern.FindAllStringSubmatch(output, -1) {
			name := strings.ToLower(match[1])
			if _, ok := knownSubagentTools[name]; ok {
				tools[name] = struct{}{}
			}
		}
	}
	summary.Tools = sortedKeys(tools)
	summary.FilesRead = capped(matchAll(readPatterns, output), maxListedFiles)
	summary.FilesWritten = capped(matchAll(writePatterns, output), maxListedFiles)
	summary.HasErrors = errorPattern.MatchString(output)
	summary.Summary = summarize(output)
	return summary
}

func matchAll(patterns []*regexp.Regexp, output string) []string {
	found := map[string]struct{}{}
	for _, pattern := range patterns {
		for _, match := range pattern.FindAllStringSubmatch(output, -1) {
			found[match[1]] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func summarize(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > summaryLineBudget {
		lines = lines[:summaryLineBudget]
	}
	picked := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "#") {
			continue
		}
		picked = append(picked, line)
		if len(strings.Join(picked, " ")) > summarySoftLimit {
			break
		}
	}
	joined := []rune(strings.Join(picked, " "))
	if len(joined) > summaryHardLimit {
		joined = joined[:summaryHardLimit]
	}
	return string(joined)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func capped(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
