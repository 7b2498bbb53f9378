package llm

import "fmt"

const structuredEntrySystemPrompt = `You are summarizing a single journal entry from a tabletop role-playing campaign. Respond with a single JSON object and nothing else, in exactly this shape:
{"title": "...", "subtitle": "...", "summary": "..."}
The title is a short (<=6 word) label for the entry. The subtitle is a one-line hook. The summary is 2-3 sentences capturing what happened and why it matters.`

func structuredEntryPrompt(content string) string {
	return fmt.Sprintf("Journal entry:\n\n%s", content)
}

// SummaryPrompt renders a plain-text summarization prompt for a labeled
// block of content, bounded to targetWords. Used by internal/promptctx and
// internal/parts for character-field, entry, part, so-far, and recent
// summaries alike — the label and content vary, the instruction shape
// does not.
func SummaryPrompt(label, content string, targetWords int) string {
	return fmt.Sprintf(
		"Summarize the following %s in no more than %d words. Preserve names, decisions, and outcomes; omit flavor text that doesn't affect the story going forward.\n\n%s",
		label, targetWords, content,
	)
}

// QuestionsSystemPrompt is the system prompt for the reflective-questions
// call shape (C8).
const QuestionsSystemPrompt = `You are a thoughtful game master's assistant. Given a character and their journal so far, propose 3-5 open-ended questions the player could use to reflect on or extend their character's story. Respond as a short bulleted list, no preamble.`

// QuestionsPrompt renders the user-turn prompt for C8 given an already
// assembled context block (see internal/promptctx).
func QuestionsPrompt(contextBlock string) string {
	return fmt.Sprintf("Context:\n\n%s\n\nPropose reflective questions.", contextBlock)
}
