package notification

import "maintenance-monitor-backend/internal/model"

// Channel names an outbound notification channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelPush  Channel = "push"
)

// Task is one unit of outbound notification work.
type Task struct {
	Channel     Channel
	EquipmentID int64
	Severity    model.Severity
	Subject     string
	// Body is HTML for e-mail and plain text for chat and push.
	Body       string
	Recipients []string
	Fields     []Field
	URL        string
}

// Field is a labelled value shown in chat messages.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}
