package chat

// Sender values for a message turn.
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
)

// Message is a single turn in a thread's log. Bot text is stripped of
// executable markup before it is stored; rendering to the safe HTML
// subset happens at display time.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsError   bool   `json:"isError,omitempty"`
	IsSystem  bool   `json:"isSystem,omitempty"`
}
