package chat

// DocumentInfo describes the uploaded document behind a session binding.
// Size is kept display-formatted, matching what the shell shows verbatim.
type DocumentInfo struct {
	Name       string `json:"name"`
	Size       string `json:"size,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
	IsUpdate   bool   `json:"isUpdate,omitempty"`
}

// SessionBinding associates a thread with a backend document session.
// A zero value means no document has been uploaded for the thread.
type SessionBinding struct {
	SessionID string       `json:"sessionId,omitempty"`
	Document  DocumentInfo `json:"document,omitzero"`
}

// Bound reports whether a document session exists for the thread.
func (b SessionBinding) Bound() bool { return b.SessionID != "" }

// Thread is one independent conversation: an append-only message log,
// an optional document session, and a display name derived from its id.
type Thread struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Messages []Message      `json:"messages"`
	Binding  SessionBinding `json:"binding"`
	IsActive bool           `json:"isActive"`
}
