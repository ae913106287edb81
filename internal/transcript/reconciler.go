package transcript

import (
	"errors"
	"strings"

	"buildchat/internal/enhance"
	"buildchat/internal/logging"
	"buildchat/internal/types"
)

// Reconciler folds stream events into a Transcript. It is not safe for
// concurrent use; the owner serializes Apply calls.
type Reconciler struct {
	t       *Transcript
	logger  logging.Logger
	current int

	tools     map[string]PartRef
	subagents map[string]PartRef
	questions map[string]PartRef
	pending   *PendingQuestion
}

func NewReconciler(t *Transcript, logger logging.Logger) *Reconciler {
	if t == nil {
		t = New("")
	}
	return &Reconciler{
		t:         t,
		logger:    logging.OrNop(logger),
		current:   -1,
		tools:     map[string]PartRef{},
		subagents: map[string]PartRef{},
		questions: map[string]PartRef{},
	}
}

func (r *Reconciler) Transcript() *Transcript {
	return r.t
}

// Current is the index of the assistant message receiving content, or -1.
func (r *Reconciler) Current() int {
	return r.current
}

func (r *Reconciler) Pending() *PendingQuestion {
	if r.pending == nil {
		return nil
	}
	pending := *r.pending
	return &pending
}

func (r *Reconciler) ClearPending() {
	r.pending = nil
}

// Apply reconciles one event and reports what changed.
func (r *Reconciler) Apply(event types.Event) []Change {
	switch event.NormalizedType() {
	case types.EventMessagePartUpdated:
		var props types.PartUpdatedProperties
		if !r.decode(event, &props) || r.foreign(props.Part.SessionID) {
			return nil
		}
		return r.applyPart(props.Part, props.Delta, event.Enhancement)
	case types.EventMessageUpdated:
		var props types.MessageUpdatedProperties
		if !r.decode(event, &props) || r.foreign(props.Info.SessionID) {
			return nil
		}
		return r.applyInfo(props.Info)
	case types.EventQuestionAsked:
		var req types.QuestionRequest
		if !r.decode(event, &req) || r.foreign(req.SessionID) {
			return nil
		}
		return r.askQuestion(req)
	case types.EventQuestionReplied:
		var props types.QuestionRepliedProperties
		if !r.decode(event, &props) || r.foreign(props.SessionID) {
			return nil
		}
		return r.AnswerQuestion(props.RequestID, props.Answers, false)
	case types.EventQuestionRejected:
		var props types.QuestionRejectedProperties
		if !r.decode(event, &props) || r.foreign(props.SessionID) {
			return nil
		}
		return r.AnswerQuestion(props.RequestID, nil, true)
	case types.EventSessionError:
		var props types.SessionErrorProperties
		if !r.decode(event, &props) || r.foreign(props.SessionID) {
			return nil
		}
		text := props.Error.Text()
		if text == "" {
			text = "session error"
		}
		return r.fail(text)
	case types.EventConnectionError:
		var props types.ConnectionErrorProperties
		r.decode(event, &props)
		text := strings.TrimSpace(props.Error)
		if text == "" {
			text = "connection lost"
		}
		return r.fail(text)
	case types.EventSessionIdle:
		var props types.SessionIdleProperties
		if !r.decode(event, &props) || r.foreign(props.SessionID) {
			return nil
		}
		clear(r.subagents)
		return []Change{notice(ChangeStatus, "idle")}
	case types.EventSessionStatus:
		var props types.SessionStatusProperties
		if !r.decode(event, &props) || r.foreign(props.SessionID) {
			return nil
		}
		return []Change{notice(ChangeStatus, strings.TrimSpace(props.Status.Type))}
	case types.EventFileEdited:
		var props types.FileEditedProperties
		if !r.decode(event, &props) {
			return nil
		}
		return []Change{notice(ChangeFileEdited, props.File)}
	case types.EventServerConnected:
		return []Change{notice(ChangeConnected, "")}
	default:
		return nil
	}
}

// Replay reconciles a batch of stored messages through the same paths live
// events take. Stored parts carry no deltas, only full text.
func (r *Reconciler) Replay(messages []types.WireMessage) []Change {
	var changes []Change
	for _, wire := range messages {
		info := wire.Info
		info.Role = wire.Role()
		if info.Role == types.RoleUser {
			idx, added := r.applyUserInfo(info)
			changes = append(changes, added...)
			for _, part := range wire.Parts {
				changes = append(changes, r.applyUserPart(idx, part)...)
			}
			continue
		}
		if info.ID == "" {
			info.ID = wireMessageID(wire.Parts)
		}
		if info.ID == "" {
			r.startEntry()
		}
		for _, part := range wire.Parts {
			if part.MessageID == "" {
				part.MessageID = info.ID
			}
			changes = append(changes, r.applyPart(part, nil, types.Enhancement{})...)
		}
		if strings.TrimSpace(info.Finish) == "" {
			info.Finish = stepFinishReason(wire.Parts)
		}
		changes = append(changes, r.applyInfo(info)...)
	}
	return changes
}

// startEntry detaches an anonymous current message before another stored
// entry without an id, so consecutive anonymous entries stay separate. An
// empty placeholder or a message the stream already bound is continued.
func (r *Reconciler) startEntry() {
	cur := r.t.Message(r.current)
	if cur == nil || cur.ID != "" || len(cur.Parts) == 0 {
		return
	}
	r.settleCurrent()
}

// AppendUser records a message typed locally. Server echoes of its parts are
// ignored once message.updated binds the server id.
func (r *Reconciler) AppendUser(text string, attachments []Attachment) []Change {
	r.settleCurrent()
	msg := &Message{Role: types.RoleUser, Status: MessageComplete, Local: true}
	if strings.TrimSpace(text) != "" {
		msg.Parts = append(msg.Parts, &Part{Kind: KindText, Text: text})
	}
	for i := range attachments {
		file := attachments[i]
		msg.Parts = append(msg.Parts, &Part{Kind: KindFile, File: &file})
	}
	return []Change{messageChange(ChangeMessageAdded, r.t.append(msg))}
}

// BeginAssistant appends an empty assistant message that the next unknown
// assistant id binds to.
func (r *Reconciler) BeginAssistant() []Change {
	if cur := r.t.Message(r.current); cur != nil && cur.IsAssistant() && cur.ID == "" && len(cur.Parts) == 0 {
		return nil
	}
	r.settleCurrent()
	r.current = r.t.append(&Message{Role: types.RoleAssistant, Status: MessageEmpty})
	return []Change{messageChange(ChangeMessageAdded, r.current)}
}

// Interrupt stops the current message locally.
func (r *Reconciler) Interrupt() []Change {
	idx := r.current
	if idx < 0 {
		return nil
	}
	r.current = -1
	msg := r.t.Messages[idx]
	if msg.Streaming() {
		msg.Status = MessageInterrupted
	}
	return []Change{{Kind: ChangeStatus, Message: idx, Part: -1, Notice: "interrupted"}}
}

// AnswerQuestion closes a question. Answers are positional, one list per
// asked question. Closing is terminal; repeated calls change nothing.
func (r *Reconciler) AnswerQuestion(requestID string, answers [][]string, rejected bool) []Change {
	requestID = strings.TrimSpace(requestID)
	if r.pending != nil && r.pending.RequestID == requestID {
		r.pending = nil
	}
	ref, ok := r.questions[requestKey(requestID)]
	if !ok {
		return nil
	}
	q := r.t.Part(ref).Question
	if q.Answered {
		return nil
	}
	q.Answered = true
	q.Rejected = rejected
	if !rejected {
		q.Output = FormatAnswers(q.Questions, answers)
	}
	r.resumeAfterQuestion(ref.Message)
	return []Change{partChange(ChangeQuestionClosed, ref)}
}

// RestorePending marks req as the pending question when the newest message
// holds it unanswered. It reports whether the question was restored.
func (r *Reconciler) RestorePending(req types.QuestionRequest) bool {
	last := r.t.Len() - 1
	msg := r.t.Message(last)
	if msg == nil || req.ID == "" {
		return false
	}
	ref, ok := r.questions[requestKey(req.ID)]
	if !ok && req.Tool != nil && req.Tool.CallID != "" {
		ref, ok = r.questions[callKey(req.Tool.CallID)]
	}
	if !ok {
		return false
	}
	if ref.Message != last {
		return false
	}
	q := r.t.Part(ref).Question
	if q.Answered {
		return false
	}
	q.RequestID = req.ID
	if len(q.Questions) == 0 {
		q.Questions = req.Questions
	}
	r.questions[requestKey(req.ID)] = ref
	r.pending = &PendingQuestion{RequestID: req.ID, Message: ref.Message}
	if msg.Streaming() {
		msg.Status = MessageAwaitingQuestion
	}
	return true
}

func (r *Reconciler) decode(event types.Event, out any) bool {
	if err := event.DecodeProperties(out); err != nil {
		r.logger.Warn("event properties undecodable",
			logging.F("type", event.Type),
			logging.F("err", err),
		)
		return false
	}
	return true
}

func (r *Reconciler) foreign(sessionID string) bool {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || r.t.SessionID == "" || sessionID == r.t.SessionID {
		return false
	}
	r.logger.Debug("event for another session dropped", logging.F("session_id", sessionID))
	return true
}

func (r *Reconciler) fail(text string) []Change {
	changes := []Change{{Kind: ChangeError, Message: r.current, Part: -1, Notice: text, Err: errors.New(text)}}
	return append(changes, r.Interrupt()...)
}

// resolveMessage finds the message an id refers to. Unknown ids bind to the
// empty placeholder if there is one, otherwise a new assistant message
// becomes current.
func (r *Reconciler) resolveMessage(messageID string) (int, []Change) {
	if idx := r.t.FindMessage(messageID); idx >= 0 {
		return idx, nil
	}
	if cur := r.t.Message(r.current); cur != nil && cur.IsAssistant() {
		if messageID == "" {
			return r.current, nil
		}
		if cur.ID == "" {
			cur.ID = messageID
			return r.current, nil
		}
	}
	r.settleCurrent()
	r.current = r.t.append(&Message{ID: messageID, Role: types.RoleAssistant, Status: MessageStreaming})
	return r.current, []Change{messageChange(ChangeMessageAdded, r.current)}
}

// settleCurrent detaches the current message. A message that ended a step
// with tool calls is complete; anything else was cut short.
func (r *Reconciler) settleCurrent() {
	msg := r.t.Message(r.current)
	r.current = -1
	if msg == nil || !msg.Streaming() {
		return
	}
	if msg.Finish != "" {
		msg.Status = MessageComplete
		return
	}
	msg.Status = MessageInterrupted
}

func (r *Reconciler) applyInfo(info types.MessageInfo) []Change {
	switch strings.ToLower(strings.TrimSpace(info.Role)) {
	case types.RoleUser:
		_, changes := r.applyUserInfo(info)
		return changes
	case types.RoleAssistant:
		return r.applyAssistantInfo(info)
	default:
		return nil
	}
}

func (r *Reconciler) applyUserInfo(info types.MessageInfo) (int, []Change) {
	if idx := r.t.FindMessage(info.ID); idx >= 0 {
		return idx, nil
	}
	if info.ID != "" {
		for i := len(r.t.Messages) - 1; i >= 0; i-- {
			msg := r.t.Messages[i]
			if msg.IsUser() && msg.Local && msg.ID == "" {
				msg.ID = info.ID
				msg.Model = info.ModelRef()
				msg.Agent = info.AgentName()
				return i, nil
			}
		}
	}
	r.settleCurrent()
	idx := r.t.append(&Message{
		ID:     info.ID,
		Role:   types.RoleUser,
		Status: MessageComplete,
		Model:  info.ModelRef(),
		Agent:  info.AgentName(),
	})
	return idx, []Change{messageChange(ChangeMessageAdded, idx)}
}

func (r *Reconciler) applyAssistantInfo(info types.MessageInfo) []Change {
	idx, changes := r.resolveMessage(info.ID)
	msg := r.t.Messages[idx]
	if model := info.ModelRef(); !model.IsZero() {
		msg.Model = model
	}
	if agent := info.AgentName(); agent != "" {
		msg.Agent = agent
	}
	if info.Tokens != nil {
		msg.Tokens = info.Tokens
	}
	if info.Cost != 0 {
		msg.Cost = info.Cost
	}
	finish := strings.TrimSpace(info.Finish)
	if finish != "" {
		msg.Finish = finish
	}
	if info.Error != nil {
		return append(changes, r.failMessage(idx, info.Error)...)
	}
	if finish == "" || finish == types.FinishToolCalls {
		if msg.Status == MessageEmpty {
			msg.Status = MessageStreaming
		}
		return changes
	}
	if msg.Status == MessageComplete {
		return changes
	}
	msg.Status = MessageComplete
	if r.current == idx {
		r.current = -1
	}
	return append(changes, Change{
		Kind:       ChangeMessageCompleted,
		Message:    idx,
		Part:       -1,
		Completion: &Completion{MessageID: msg.ID, Finish: finish, Tokens: msg.Tokens, Cost: msg.Cost},
	})
}

func (r *Reconciler) failMessage(idx int, msgErr *types.MessageError) []Change {
	msg := r.t.Messages[idx]
	text := msgErr.Text()
	if text == "" {
		text = "message failed"
	}
	if msg.Error == text && !msg.Streaming() {
		return nil
	}
	msg.Error = text
	if msg.Streaming() {
		msg.Status = MessageInterrupted
	}
	if r.current == idx {
		r.current = -1
	}
	finish := msg.Finish
	if finish == "" {
		finish = "error"
	}
	return []Change{
		{Kind: ChangeError, Message: idx, Part: -1, Notice: text, Err: errors.New(text)},
		{Kind: ChangeMessageCompleted, Message: idx, Part: -1, Completion: &Completion{
			MessageID: msg.ID, Finish: finish, Tokens: msg.Tokens, Cost: msg.Cost,
		}},
	}
}

func (r *Reconciler) applyPart(part types.Part, delta *string, enh types.Enhancement) []Change {
	idx, changes := r.resolveMessage(part.MessageID)
	msg := r.t.Messages[idx]
	if msg.IsUser() {
		return append(changes, r.applyUserPart(idx, part)...)
	}
	if msg.Status == MessageEmpty {
		msg.Status = MessageStreaming
	}
	switch strings.ToLower(part.Type) {
	case types.PartTypeText:
		changes = append(changes, r.applyText(idx, KindText, part, delta))
	case types.PartTypeReasoning:
		changes = append(changes, r.applyText(idx, KindReasoning, part, delta))
	case types.PartTypeTool:
		switch {
		case enh.IsSubagent || enhance.IsSubagentTool(part.Tool):
			changes = append(changes, r.applySubagent(idx, part, enh))
		case enhance.IsQuestionTool(part.Tool):
			changes = append(changes, r.applyQuestionTool(idx, part)...)
		default:
			changes = append(changes, r.upsertTool(idx, part, enh))
		}
	case types.PartTypeStepStart, types.PartTypeStepFinish:
		changes = append(changes, r.applyStep(idx, part))
	case types.PartTypeFile:
		changes = append(changes, r.applyFile(idx, part))
	default:
		r.logger.Debug("part type ignored", logging.F("type", part.Type))
	}
	return changes
}

// applyUserPart inserts parts of messages that did not originate here.
// User content is immutable once recorded.
func (r *Reconciler) applyUserPart(idx int, part types.Part) []Change {
	msg := r.t.Messages[idx]
	if msg.Local || (part.ID != "" && msg.findPart(part.ID) >= 0) {
		return nil
	}
	var p *Part
	switch strings.ToLower(part.Type) {
	case types.PartTypeText:
		p = &Part{ID: part.ID, Kind: KindText, Text: part.Text}
	case types.PartTypeFile:
		p = &Part{ID: part.ID, Kind: KindFile, File: attachmentOf(part)}
	default:
		return nil
	}
	return []Change{partChange(ChangePartChanged, r.appendPart(idx, p))}
}

// applyText appends a delta when one is present and otherwise takes the
// event's text as the whole content. Reasoning is always overwritten.
func (r *Reconciler) applyText(idx int, kind PartKind, part types.Part, delta *string) Change {
	msg := r.t.Messages[idx]
	pos := msg.findPart(part.ID)
	if pos < 0 && part.ID == "" {
		if last := len(msg.Parts) - 1; last >= 0 && msg.Parts[last].Kind == kind && msg.Parts[last].ID == "" {
			pos = last
		}
	}
	if pos < 0 {
		p := &Part{ID: part.ID, Kind: kind, Text: part.Text}
		if p.Text == "" && delta != nil {
			p.Text = *delta
		}
		return partChange(ChangePartChanged, r.appendPart(idx, p))
	}
	p := msg.Parts[pos]
	switch {
	case kind == KindReasoning && part.Text != "":
		p.Text = part.Text
	case delta != nil:
		p.Text += *delta
	default:
		p.Text = part.Text
	}
	return partChange(ChangePartChanged, PartRef{Message: idx, Part: pos})
}

func (r *Reconciler) upsertTool(idx int, part types.Part, enh types.Enhancement) Change {
	key := partKey(part)
	status, known := toolStatus(part.State)
	if ref, ok := r.tools[key]; ok && key != "" {
		call := r.t.Part(ref).Tool
		mergeTool(call, part)
		if known {
			call.Status = status
		}
		return partChange(ChangePartChanged, ref)
	}
	call := &ToolCall{Name: part.Tool, CallID: part.CallID, Status: StatusCompleted}
	call.Category = enh.ToolCategory
	if call.Category == "" {
		call.Category = enhance.ToolCategory(part.Tool)
	}
	mergeTool(call, part)
	if known {
		call.Status = status
	}
	ref := r.appendPart(idx, &Part{ID: part.ID, Kind: KindTool, Tool: call})
	if key != "" {
		r.tools[key] = ref
	}
	return partChange(ChangePartChanged, ref)
}

// applySubagent routes task tool events through the live sub-agent index.
// Status only moves forward; reaching a terminal status retires the id so a
// later event for it starts a fresh part.
func (r *Reconciler) applySubagent(idx int, part types.Part, enh types.Enhancement) Change {
	key := partKey(part)
	status, known := toolStatus(part.State)
	if ref, ok := r.subagents[key]; ok && key != "" {
		task := r.t.Part(ref).Subagent
		patchSubagent(task, part, enh)
		if known && statusRank(status) >= statusRank(task.Status) {
			task.Status = status
		}
		if task.Status.Terminal() {
			delete(r.subagents, key)
			summarizeSubagent(task, enh)
		}
		return partChange(ChangePartChanged, ref)
	}
	if ref, ok := r.finishedSubagent(idx, part.ID); ok && known && status == r.t.Part(ref).Subagent.Status {
		task := r.t.Part(ref).Subagent
		patchSubagent(task, part, enh)
		summarizeSubagent(task, enh)
		return partChange(ChangePartChanged, ref)
	}
	task := &SubagentTask{ToolCall: ToolCall{
		Name:     part.Tool,
		CallID:   part.CallID,
		Category: enhance.CategorySubagent,
		Status:   StatusPending,
	}}
	switch {
	case known:
		task.Status = status
	case part.State == nil || strings.TrimSpace(part.State.Status) == "":
		task.Status = StatusCompleted
	}
	patchSubagent(task, part, enh)
	ref := r.appendPart(idx, &Part{ID: part.ID, Kind: KindSubagent, Subagent: task})
	if task.Status.Terminal() {
		summarizeSubagent(task, enh)
	} else if key != "" {
		r.subagents[key] = ref
	}
	return partChange(ChangePartChanged, ref)
}

// finishedSubagent finds the newest terminal sub-agent part with id on the
// message. Re-applying its final state updates it in place.
func (r *Reconciler) finishedSubagent(idx int, id string) (PartRef, bool) {
	if id == "" {
		return PartRef{}, false
	}
	msg := r.t.Messages[idx]
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		p := msg.Parts[i]
		if p.ID != id || p.Kind != KindSubagent {
			continue
		}
		if !p.Subagent.Status.Terminal() {
			return PartRef{}, false
		}
		return PartRef{Message: idx, Part: i}, true
	}
	return PartRef{}, false
}

// applyQuestionTool projects the question tool call onto the Question part
// that question.asked also targets, matched by call id.
func (r *Reconciler) applyQuestionTool(idx int, part types.Part) []Change {
	callID := part.CallID
	if callID == "" {
		callID = part.ID
	}
	status, known := toolStatus(part.State)
	var changes []Change
	ref, ok := r.questions[callKey(callID)]
	if !ok {
		q := &Question{CallID: callID}
		if part.State != nil {
			q.Questions = types.QuestionsFromInput(part.State.Input)
		}
		ref = r.appendPart(idx, &Part{ID: part.ID, Kind: KindQuestion, Question: q})
		if callID != "" {
			r.questions[callKey(callID)] = ref
		}
		if !known || !status.Terminal() {
			changes = append(changes, r.supersede(ref)...)
		}
	}
	if p := r.t.Part(ref); part.ID != "" && p.ID != part.ID {
		p.ID = part.ID
	}
	q := r.t.Part(ref).Question
	if len(q.Questions) == 0 && part.State != nil {
		q.Questions = types.QuestionsFromInput(part.State.Input)
	}
	if known && status.Terminal() {
		wasOpen := !q.Answered
		q.Answered = true
		q.Rejected = q.Rejected || status == StatusFailed
		if part.State != nil && part.State.Output != "" {
			q.Output = part.State.Output
		}
		if wasOpen {
			if r.pending != nil && r.pending.RequestID == q.RequestID {
				r.pending = nil
			}
			r.resumeAfterQuestion(ref.Message)
			return append(changes, partChange(ChangeQuestionClosed, ref))
		}
	}
	return append(changes, partChange(ChangePartChanged, ref))
}

func (r *Reconciler) askQuestion(req types.QuestionRequest) []Change {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return nil
	}
	if _, ok := r.questions[requestKey(req.ID)]; ok {
		return nil
	}
	var messageID, callID string
	if req.Tool != nil {
		messageID = req.Tool.MessageID
		callID = req.Tool.CallID
	}
	var changes []Change
	ref, ok := r.questions[callKey(callID)]
	if !ok || callID == "" {
		var idx int
		idx, changes = r.resolveMessage(messageID)
		q := &Question{RequestID: req.ID, CallID: callID, Questions: req.Questions}
		ref = r.appendPart(idx, &Part{ID: req.ID, Kind: KindQuestion, Question: q})
		if callID != "" {
			r.questions[callKey(callID)] = ref
		}
	}
	r.questions[requestKey(req.ID)] = ref
	q := r.t.Part(ref).Question
	q.RequestID = req.ID
	if len(req.Questions) > 0 {
		q.Questions = req.Questions
	}
	if q.Answered {
		return changes
	}
	changes = append(changes, r.supersede(ref)...)
	r.pending = &PendingQuestion{RequestID: req.ID, Message: ref.Message}
	if msg := r.t.Messages[ref.Message]; msg.Streaming() {
		msg.Status = MessageAwaitingQuestion
	}
	return append(changes, partChange(ChangeQuestionOpened, ref))
}

// supersede closes every other open question on the message holding ref.
func (r *Reconciler) supersede(ref PartRef) []Change {
	msg := r.t.Messages[ref.Message]
	var changes []Change
	for i, part := range msg.Parts {
		if i == ref.Part || part.Kind != KindQuestion || part.Question.Answered {
			continue
		}
		part.Question.Answered = true
		if r.pending != nil && r.pending.RequestID == part.Question.RequestID {
			r.pending = nil
		}
		changes = append(changes, partChange(ChangeQuestionClosed, PartRef{Message: ref.Message, Part: i}))
	}
	return changes
}

func (r *Reconciler) resumeAfterQuestion(idx int) {
	msg := r.t.Message(idx)
	if msg != nil && msg.Status == MessageAwaitingQuestion && msg.OpenQuestion() < 0 {
		msg.Status = MessageStreaming
	}
}

func (r *Reconciler) applyStep(idx int, part types.Part) Change {
	msg := r.t.Messages[idx]
	pos := msg.findPart(part.ID)
	var step *StepMarker
	if pos >= 0 && msg.Parts[pos].Step != nil {
		step = msg.Parts[pos].Step
	} else {
		step = &StepMarker{}
		pos = r.appendPart(idx, &Part{ID: part.ID, Kind: KindStep, Step: step}).Part
	}
	if part.Type == types.PartTypeStepFinish {
		step.Finish = true
		step.Reason = part.Reason
		step.Tokens = part.Tokens
		step.Cost = part.Cost
	}
	return partChange(ChangePartChanged, PartRef{Message: idx, Part: pos})
}

func (r *Reconciler) applyFile(idx int, part types.Part) Change {
	msg := r.t.Messages[idx]
	if pos := msg.findPart(part.ID); pos >= 0 {
		msg.Parts[pos].File = attachmentOf(part)
		return partChange(ChangePartChanged, PartRef{Message: idx, Part: pos})
	}
	return partChange(ChangePartChanged, r.appendPart(idx, &Part{ID: part.ID, Kind: KindFile, File: attachmentOf(part)}))
}

func (r *Reconciler) appendPart(idx int, part *Part) PartRef {
	msg := r.t.Messages[idx]
	msg.Parts = append(msg.Parts, part)
	return PartRef{Message: idx, Part: len(msg.Parts) - 1}
}

// FormatAnswers renders positional answers as one line per question.
func FormatAnswers(questions []types.QuestionSpec, answers [][]string) string {
	lines := make([]string, 0, len(answers))
	for i, answer := range answers {
		value := strings.Join(answer, ", ")
		if value == "" {
			value = "(no answer)"
		}
		label := ""
		if i < len(questions) {
			label = strings.TrimSpace(questions[i].Header)
			if label == "" {
				label = strings.TrimSpace(questions[i].Text)
			}
		}
		if label != "" {
			value = label + ": " + value
		}
		lines = append(lines, value)
	}
	return strings.Join(lines, "\n")
}

func mergeTool(call *ToolCall, part types.Part) {
	if part.Tool != "" {
		call.Name = part.Tool
	}
	if part.CallID != "" {
		call.CallID = part.CallID
	}
	state := part.State
	if state == nil {
		return
	}
	if len(state.Input) > 0 {
		call.Input = state.Input
	}
	if state.Output != "" {
		call.Output = state.Output
	}
	if state.Error != "" {
		call.Error = state.Error
	}
	if state.Title != "" {
		call.Title = state.Title
	}
}

func patchSubagent(task *SubagentTask, part types.Part, enh types.Enhancement) {
	mergeTool(&task.ToolCall, part)
	if value := strings.TrimSpace(enh.SubagentType); value != "" {
		task.SubagentType = value
	} else if value := inputString(task.Input, "subagent_type"); value != "" {
		task.SubagentType = value
	}
	if task.SubagentType == "" {
		task.SubagentType = "general"
	}
	if value := strings.TrimSpace(enh.SubagentDescription); value != "" {
		task.Description = value
	} else if value := inputString(task.Input, "description"); value != "" {
		task.Description = value
	}
	if enh.SubagentParsed != nil {
		parsed := *enh.SubagentParsed
		task.Summary = &parsed
	}
}

// summarizeSubagent fills in the digest when the stream did not provide one.
func summarizeSubagent(task *SubagentTask, enh types.Enhancement) {
	if task.Summary != nil || enh.SubagentParsed != nil {
		return
	}
	if task.Status != StatusCompleted || strings.TrimSpace(task.Output) == "" {
		return
	}
	summary := enhance.ParseTaskOutput(task.Output)
	task.Summary = &summary
}

func toolStatus(state *types.ToolState) (ToolStatus, bool) {
	if state == nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(state.Status)) {
	case types.ToolStatusPending:
		return StatusPending, true
	case types.ToolStatusRunning:
		return StatusRunning, true
	case types.ToolStatusCompleted:
		return StatusCompleted, true
	case types.ToolStatusError, string(StatusFailed):
		return StatusFailed, true
	default:
		return "", false
	}
}

func statusRank(status ToolStatus) int {
	switch status {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

func partKey(part types.Part) string {
	if id := strings.TrimSpace(part.ID); id != "" {
		return id
	}
	return strings.TrimSpace(part.CallID)
}

func wireMessageID(parts []types.Part) string {
	for _, part := range parts {
		if id := strings.TrimSpace(part.MessageID); id != "" {
			return id
		}
	}
	return ""
}

// stepFinishReason is the reason of the last step-finish part. Stored
// entries without message info only signal completion this way.
func stepFinishReason(parts []types.Part) string {
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i].Type == types.PartTypeStepFinish {
			return strings.TrimSpace(parts[i].Reason)
		}
	}
	return ""
}

func requestKey(id string) string { return "req:" + id }
func callKey(id string) string    { return "call:" + id }

func attachmentOf(part types.Part) *Attachment {
	return &Attachment{Mime: part.Mime, Filename: part.Filename, URL: part.URL}
}

func inputString(input map[string]any, key string) string {
	value, _ := input[key].(string)
	return strings.TrimSpace(value)
}
