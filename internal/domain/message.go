package domain

import "strings"

// A2A wire types. The remote task protocol is JSON-RPC request/response:
// the request carries a user message split into typed parts, the response
// carries a task object with zero or more artifacts.

// TaskMessage is the message envelope sent to a remote agent.
type TaskMessage struct {
	Role      string        `json:"role"`
	Parts     []MessagePart `json:"parts"`
	MessageID string        `json:"messageId"`
	ContextID string        `json:"contextId"`
}

// MessagePart is one typed fragment of a message or artifact.
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextTask builds a user-role task message with a single text part.
func NewTextTask(text, messageID, contextID string) TaskMessage {
	return TaskMessage{
		Role:      "user",
		Parts:     []MessagePart{{Type: "text", Text: text}},
		MessageID: messageID,
		ContextID: contextID,
	}
}

// Task is the result object returned by a remote agent.
type Task struct {
	ID        string     `json:"id,omitempty"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Text concatenates the text parts of all artifacts on the task, in order.
func (t *Task) Text() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for _, art := range t.Artifacts {
		for _, part := range art.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// TaskStatus reports the remote task's terminal state.
type TaskStatus struct {
	State string `json:"state,omitempty"`
}

// Artifact is one output produced by a remote agent.
type Artifact struct {
	ArtifactID string        `json:"artifactId,omitempty"`
	Name       string        `json:"name,omitempty"`
	Parts      []MessagePart `json:"parts,omitempty"`
}
