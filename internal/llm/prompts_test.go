package llm

import (
	"strconv"
	"strings"
	"testing"
)

func TestSummaryPromptIncludesLabelWordLimitAndContent(t *testing.T) {
	got := SummaryPrompt("character backstory", "a long tale", 50)
	if !strings.Contains(got, "character backstory") {
		t.Fatalf("expected label in prompt: %q", got)
	}
	if !strings.Contains(got, strconv.Itoa(50)) {
		t.Fatalf("expected word limit in prompt: %q", got)
	}
	if !strings.Contains(got, "a long tale") {
		t.Fatalf("expected content in prompt: %q", got)
	}
}

func TestQuestionsPromptIncludesContextBlock(t *testing.T) {
	got := QuestionsPrompt("name=Elowen\nrace=Elf")
	if !strings.Contains(got, "name=Elowen") {
		t.Fatalf("expected context block embedded in prompt: %q", got)
	}
}

func TestStructuredEntryPromptIncludesContent(t *testing.T) {
	got := structuredEntryPrompt("we fought a dragon")
	if !strings.Contains(got, "we fought a dragon") {
		t.Fatalf("expected entry content in prompt: %q", got)
	}
}
