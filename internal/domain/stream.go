package domain

// StreamEvent is one unit of routed output. Within one producer, events are
// delivered in emission order; the terminal marker is the closing of the
// consumer channel, so every stream terminates cleanly.
type StreamEvent struct {
	Content string `json:"content,omitempty"`
	// Notice marks an interim human-readable notice (e.g. backoff progress)
	// rather than engine output.
	Notice bool `json:"notice,omitempty"`
	// Error marks the single terminal error chunk of a failed stream.
	Error bool `json:"error,omitempty"`
}

// DataEvent builds an ordinary output chunk.
func DataEvent(content string) StreamEvent { return StreamEvent{Content: content} }

// NoticeEvent builds an interim notice chunk.
func NoticeEvent(content string) StreamEvent { return StreamEvent{Content: content, Notice: true} }

// ErrorEvent builds a terminal error chunk.
func ErrorEvent(content string) StreamEvent { return StreamEvent{Content: content, Error: true} }
