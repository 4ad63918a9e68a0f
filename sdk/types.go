package mailq

import "time"

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// SendRequest describes one email. Empty Subject or Text use the server's
// configured defaults.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
}

// EnqueueResponse is returned by POST /emails.
type EnqueueResponse struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
}

// DirectResponse is returned by POST /emails/direct.
type DirectResponse struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
}

// LogEntry is one activity log row. Status is one of queued, queue_failed,
// success or failed.
type LogEntry struct {
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	Error     *string   `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
}

// Message is the content of a stored record.
type Message struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Delivery is the worker-owned status of a stored record. State is one of
// PENDING, SUCCESS or ERROR.
type Delivery struct {
	State     string         `json:"state"`
	Attempts  int            `json:"attempts"`
	Error     *string        `json:"error"`
	StartTime *string        `json:"startTime,omitempty"`
	EndTime   *string        `json:"endTime,omitempty"`
	Info      map[string]any `json:"info,omitempty"`
}

// Task is a stored delivery record.
type Task struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	To        []string  `json:"to"`
	From      string    `json:"from,omitempty"`
	Message   Message   `json:"message"`
	Delivery  Delivery  `json:"delivery"`
}

type historyResponse struct {
	Entries []LogEntry `json:"entries"`
}

type queueResponse struct {
	Tasks []Task `json:"tasks"`
}
