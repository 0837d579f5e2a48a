package domain

import "testing"

func TestTaskText(t *testing.T) {
	task := &Task{
		Artifacts: []Artifact{
			{Parts: []MessagePart{{Type: "text", Text: "alpha "}, {Type: "text", Text: "beta"}}},
			{Parts: []MessagePart{{Type: "text", Text: " gamma"}}},
		},
	}
	if got := task.Text(); got != "alpha beta gamma" {
		t.Errorf("Text() = %q", got)
	}
}

func TestTaskTextEmpty(t *testing.T) {
	var nilTask *Task
	if got := nilTask.Text(); got != "" {
		t.Errorf("nil Text() = %q", got)
	}
	if got := (&Task{}).Text(); got != "" {
		t.Errorf("empty Text() = %q", got)
	}
}

func TestNewTextTask(t *testing.T) {
	msg := NewTextTask("ping the core router", "msg-1", "sess-1")
	if msg.Role != "user" {
		t.Errorf("Role = %q", msg.Role)
	}
	if len(msg.Parts) != 1 || msg.Parts[0].Type != "text" || msg.Parts[0].Text != "ping the core router" {
		t.Errorf("Parts = %+v", msg.Parts)
	}
	if msg.MessageID != "msg-1" || msg.ContextID != "sess-1" {
		t.Errorf("IDs = %q %q", msg.MessageID, msg.ContextID)
	}
}
