package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/harunnryd/roundtable/pkg/llm"
)

func TestToContentsMapsRoles(t *testing.T) {
	system, contents := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "you are A"},
		{Role: llm.RoleUser, Content: "[B] hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "your turn"},
	})
	if system != "you are A" {
		t.Fatalf("unexpected system instruction %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel || contents[1].Parts[0].Text != "hello" {
		t.Fatalf("unexpected assistant mapping: %+v", contents[1])
	}
	if contents[2].Role != genai.RoleUser {
		t.Fatalf("expected user role, got %s", contents[2].Role)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
