// Package llm provides LLM integration for episodic memory consolidation:
// a provider abstraction over OpenAI, Anthropic, and Ollama, JSON-only prompt
// templates for boundary detection and the four extractors, and a tolerant
// decoder that pulls structured values out of free-text replies.
package llm

import "fmt"

// BoundarySystemPrompt is the system message sent with every boundary detection call.
const BoundarySystemPrompt = "You are an expert in conversational episode boundaries. Return JSON only, with no other commentary."

// DefaultEpisodeInstructions are the custom instructions embedded in the episode prompt.
const DefaultEpisodeInstructions = `When generating episodic memories follow these principles:
1. Each episode should be a complete, self-contained story or event
2. Preserve all important information
3. Describe the episode with declarative language
4. Highlight key information
5. Make the episode easy to retrieve later`

// BoundaryDetectionPrompt asks whether the new messages close the open episode.
// The guiding principle is "merge by default, split with care".
func BoundaryDetectionPrompt(history, timeGap, newMessages string) string {
	if history == "" {
		history = "(none)"
	}
	return fmt.Sprintf(`### Task
As a conversation analyst, decide whether the newly arrived messages are the natural end of an existing conversation "episode". The goal is to split a continuous conversation stream into meaningful, independently memorable segments (MemCells). Your core principle is "merge by default, split with care".

### Context
**Conversation history:**
%s
%s
%s

**Time since the previous message:**
%s

**New messages:**
%s
%s
%s

### Decision variables
Output three decision variables: should_end, should_wait, and topic_summary.

1. should_end (close the current episode):
   - Set true ONLY when the new messages clearly open a topic unrelated to the history.
   - Examples: the date changed since the previous message; an abrupt switch to an unrelated topic; a finished task followed by an unrelated new one; a gap of more than 4 hours followed by an unrelated topic.

2. should_wait (wait for more information):
   - Set true when the new messages carry too little information to decide.
   - Examples: placeholders such as [image] or [video]; short replies without intent such as "ok", "sure", "got it"; ambiguous timing and content.

3. topic_summary:
   - Only when should_end is true: one sentence summarising the episode being closed.

### Rules
- Merging is the default: when unsure, do not split (should_end: false).
- should_end and should_wait are mutually exclusive.

### Output
Return exactly this JSON object:
{"reasoning": "one sentence", "should_end": true or false, "should_wait": true or false, "confidence": 0.0-1.0, "topic_summary": "only when should_end is true, otherwise empty"}`,
		"```", history, "```", timeGap, "```", newMessages, "```")
}

// EpisodePrompt asks for a third-person narrative of a MemCell.
func EpisodePrompt(startTime, conversation, instructions string) string {
	if conversation == "" {
		conversation = "(none)"
	}
	return fmt.Sprintf(`You are an expert at recording and distilling events. Turn the conversation below into a clear episodic memory written as a third-person narrative.

Conversation start time: %s
Conversation:
%s

Custom instructions:
%s

Requirements: narrate fluently in the third person; distill the core topics, decisions and key information; stay objective and do not evaluate.

Return JSON only:
{"title": "concise title including the date", "content": "narrative text", "summary": "short summary"}`, startTime, conversation, instructions)
}

// EventLogPrompt asks for atomic, independently retrievable facts.
func EventLogPrompt(startTime, conversation string) string {
	if conversation == "" {
		conversation = "(none)"
	}
	return fmt.Sprintf(`You are an information extraction analyst. Extract atomic facts from the conversation.

Conversation start time: %s
Conversation:
%s

Rules: every atomic_fact is a complete, independently retrievable sentence in the third person with explicit attribution. Drop greetings and small talk.

Return JSON only:
{"event_log": {"time": "time", "atomic_fact": ["fact 1", "fact 2"]}}`, startTime, conversation)
}

// ForesightPrompt asks for predictions of concrete future impact on the user.
func ForesightPrompt(userID, userName, conversation string) string {
	if conversation == "" {
		conversation = "(none)"
	}
	return fmt.Sprintf(`Based on the conversation below, predict concrete ways it may affect the user's future behaviour. Associate rather than summarise. At most 40 words each, 4-8 items.

user_id: %s
user_name: %s
conversation:
%s

Return a JSON array only:
[{"content": "prediction", "evidence": "evidence", "start_time": "YYYY-MM-DD", "end_time": "YYYY-MM-DD", "duration_days": N}]`, userID, userName, conversation)
}

// LifeProfilePrompt asks for operations to apply to the user profile document.
func LifeProfilePrompt(currentProfile, conversation string) string {
	if currentProfile == "" {
		currentProfile = "(empty)"
	}
	return fmt.Sprintf(`You maintain a user profile. Based on the conversation, decide which operations to apply to the profile.

[Current profile]
%s

[Conversation]
%s

[Task] Analyse the conversation and output a list of operations. Operation kinds: update, add, delete, none.

[Output] Return JSON only:
{"operations": [{"action": "add", "type": "explicit_info", "data": {"category": "...", "description": "...", "evidence": "..."}}], "update_note": "..."}

When nothing changes: {"operations": [{"action": "none"}], "update_note": "none"}`, currentProfile, conversation)
}
