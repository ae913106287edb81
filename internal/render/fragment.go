package render

import (
	"fmt"
	"reflect"
	"strings"

	"buildchat/internal/enhance"
	"buildchat/internal/transcript"
	"buildchat/internal/types"
)

type FragmentKind string

const (
	FragmentText        FragmentKind = "text"
	FragmentReasoning   FragmentKind = "reasoning"
	FragmentTool        FragmentKind = "tool"
	FragmentSubagent    FragmentKind = "subagent"
	FragmentQuestion    FragmentKind = "question"
	FragmentFile        FragmentKind = "file"
	FragmentError       FragmentKind = "error"
	FragmentFooter      FragmentKind = "footer"
	FragmentPlaceholder FragmentKind = "placeholder"
)

// Fragment is the display form of one part. Streaming and Interactive are
// transient affordances; everything else is a function of the part alone.
type Fragment struct {
	Key       string
	MessageID string
	Role      string
	Kind      FragmentKind
	Title     string
	Detail    string
	Body      string
	Status    string
	Category  string
	Icon      string
	Options   []string

	Streaming   bool
	Interactive bool
}

type Options struct {
	// Streaming is true while the stream feeding the transcript is live.
	Streaming bool
	// PendingQuestion is the request id the agent is blocked on.
	PendingQuestion string
}

// Project maps a transcript to fragments. It never mutates t.
func Project(t *transcript.Transcript, opts Options) []Fragment {
	if t == nil {
		return nil
	}
	var out []Fragment
	lastRef, hasLast := t.LastPart()
	for mi, msg := range t.Messages {
		for pi, part := range msg.Parts {
			frag, ok := ProjectPart(msg, part)
			if !ok {
				continue
			}
			frag.Key = fmt.Sprintf("%d.%d", mi, pi)
			if hasLast && lastRef == (transcript.PartRef{Message: mi, Part: pi}) {
				applyAffordances(&frag, msg, part, opts)
			}
			out = append(out, frag)
		}
		if msg.Error != "" {
			out = append(out, Fragment{
				Key:       fmt.Sprintf("%d.error", mi),
				MessageID: msg.ID,
				Role:      msg.Role,
				Kind:      FragmentError,
				Body:      msg.Error,
			})
		}
		if footer, ok := completionFooter(msg); ok {
			out = append(out, Fragment{
				Key:       fmt.Sprintf("%d.footer", mi),
				MessageID: msg.ID,
				Role:      msg.Role,
				Kind:      FragmentFooter,
				Body:      footer,
			})
		}
	}
	if last := t.Last(); opts.Streaming && last.IsAssistant() && last.Streaming() && len(last.Parts) == 0 {
		out = append(out, Fragment{
			Key:       fmt.Sprintf("%d.pending", t.Len()-1),
			MessageID: last.ID,
			Role:      last.Role,
			Kind:      FragmentPlaceholder,
			Streaming: true,
		})
	}
	return out
}

func applyAffordances(frag *Fragment, msg *transcript.Message, part *transcript.Part, opts Options) {
	if opts.Streaming && msg.IsAssistant() && msg.Streaming() {
		frag.Streaming = true
	}
	if part.Kind == transcript.KindQuestion && part.Question != nil && !part.Question.Answered {
		pending := strings.TrimSpace(opts.PendingQuestion)
		frag.Interactive = pending != "" && pending == part.Question.RequestID
	}
}

// ProjectPart maps a single part. Step markers have no display form.
func ProjectPart(msg *transcript.Message, part *transcript.Part) (Fragment, bool) {
	if part == nil {
		return Fragment{}, false
	}
	frag := Fragment{Kind: FragmentKind(part.Kind)}
	if msg != nil {
		frag.MessageID = msg.ID
		frag.Role = msg.Role
	}
	switch part.Kind {
	case transcript.KindText:
		if strings.TrimSpace(part.Text) == "" {
			return Fragment{}, false
		}
		frag.Body = part.Text
	case transcript.KindReasoning:
		if strings.TrimSpace(part.Text) == "" {
			return Fragment{}, false
		}
		frag.Title = "Thinking"
		frag.Body = part.Text
	case transcript.KindTool:
		if part.Tool == nil {
			return Fragment{}, false
		}
		projectTool(&frag, part.Tool)
	case transcript.KindSubagent:
		if part.Subagent == nil {
			return Fragment{}, false
		}
		projectSubagent(&frag, part.Subagent)
	case transcript.KindQuestion:
		if part.Question == nil {
			return Fragment{}, false
		}
		projectQuestion(&frag, part.Question)
	case transcript.KindFile:
		if part.File == nil {
			return Fragment{}, false
		}
		frag.Title = part.File.Filename
		if frag.Title == "" {
			frag.Title = part.File.URL
		}
		frag.Detail = part.File.Mime
		frag.Icon = enhance.Icon(enhance.CategoryFile)
	default:
		return Fragment{}, false
	}
	return frag, true
}

func projectTool(frag *Fragment, call *transcript.ToolCall) {
	frag.Category = call.Category
	if frag.Category == "" {
		frag.Category = enhance.ToolCategory(call.Name)
	}
	frag.Icon = enhance.Icon(frag.Category)
	frag.Title = call.Name
	frag.Detail = call.Title
	if frag.Detail == "" {
		frag.Detail = describeInput(call.Input)
	}
	frag.Status = string(call.Status)
	frag.Body = call.Output
	if call.Status == transcript.StatusFailed && call.Error != "" {
		frag.Body = call.Error
	}
}

func projectSubagent(frag *Fragment, task *transcript.SubagentTask) {
	frag.Category = enhance.CategorySubagent
	frag.Icon = enhance.Icon(enhance.CategorySubagent)
	frag.Title = "Subagent: " + task.SubagentType
	frag.Detail = task.Description
	frag.Status = string(task.Status)
	if task.Status == transcript.StatusFailed && task.Error != "" {
		frag.Body = task.Error
		return
	}
	if task.Summary != nil {
		frag.Body = describeSummary(*task.Summary)
	}
}

func projectQuestion(frag *Fragment, q *transcript.Question) {
	frag.Icon = "❓"
	var prompts []string
	for _, spec := range q.Questions {
		text := strings.TrimSpace(spec.Text)
		if header := strings.TrimSpace(spec.Header); header != "" && frag.Title == "" {
			frag.Title = header
		}
		if text != "" {
			prompts = append(prompts, text)
		}
		for _, option := range spec.Options {
			frag.Options = append(frag.Options, option.Label)
		}
	}
	if frag.Title == "" {
		frag.Title = "Question"
	}
	frag.Detail = strings.Join(prompts, "\n")
	switch {
	case q.Rejected:
		frag.Status = "rejected"
	case q.Answered:
		frag.Status = "answered"
		frag.Body = q.Output
	default:
		frag.Status = "open"
	}
}

func describeInput(input map[string]any) string {
	for _, key := range []string{"command", "filePath", "path", "pattern", "url", "description"} {
		if value, ok := input[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func describeSummary(summary types.TaskSummary) string {
	var lines []string
	if summary.Summary != "" {
		lines = append(lines, summary.Summary)
	}
	if len(summary.Tools) > 0 {
		lines = append(lines, "tools: "+strings.Join(summary.Tools, ", "))
	}
	if len(summary.FilesRead) > 0 {
		lines = append(lines, "read: "+strings.Join(summary.FilesRead, ", "))
	}
	if len(summary.FilesWritten) > 0 {
		lines = append(lines, "wrote: "+strings.Join(summary.FilesWritten, ", "))
	}
	if summary.HasErrors {
		lines = append(lines, "reported errors")
	}
	return strings.Join(lines, "\n")
}

func completionFooter(msg *transcript.Message) (string, bool) {
	if !msg.IsAssistant() || !msg.Completed() {
		return "", false
	}
	var fields []string
	if msg.Tokens != nil {
		fields = append(fields,
			fmt.Sprintf("%s in", groupDigits(msg.Tokens.Input)),
			fmt.Sprintf("%s out", groupDigits(msg.Tokens.Output)),
		)
	}
	if msg.Cost > 0 {
		fields = append(fields, fmt.Sprintf("$%.4f", msg.Cost))
	}
	if model := msg.Model.String(); model != "" {
		fields = append(fields, model)
	}
	if len(fields) == 0 {
		return "", false
	}
	return strings.Join(fields, " · "), true
}

func groupDigits(n int) string {
	raw := fmt.Sprintf("%d", n)
	if n < 0 || len(raw) <= 3 {
		return raw
	}
	var b strings.Builder
	lead := len(raw) % 3
	if lead > 0 {
		b.WriteString(raw[:lead])
	}
	for i := lead; i < len(raw); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(raw[i : i+3])
	}
	return b.String()
}

// Equivalent compares two projections ignoring transient affordances.
func Equivalent(a, b []Fragment) bool {
	a = settled(a)
	b = settled(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func settled(fragments []Fragment) []Fragment {
	out := make([]Fragment, 0, len(fragments))
	for _, frag := range fragments {
		if frag.Kind == FragmentPlaceholder {
			continue
		}
		frag.Streaming = false
		frag.Interactive = false
		out = append(out, frag)
	}
	return out
}

// LastPart locates the final part of the final message.
func LastPart(t *transcript.Transcript) (transcript.PartRef, bool) {
	if t == nil {
		return transcript.PartRef{}, false
	}
	return t.LastPart()
}
