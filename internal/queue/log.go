package queue

import "time"

// LogStatus describes the local outcome of an enqueue or send attempt.
// It is a separate vocabulary from DeliveryState.
type LogStatus string

const (
	LogQueued      LogStatus = "queued"
	LogQueueFailed LogStatus = "queue_failed"
	LogSuccess     LogStatus = "success"
	LogFailed      LogStatus = "failed"
)

// SystemSender is the sender recorded on log entries written by this service.
const SystemSender = "system"

// LogEntry is one append-only activity log row.
type LogEntry struct {
	Recipient string    `json:"recipient"`
	Status    LogStatus `json:"status"`
	Error     *string   `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
}

// NewLogEntry builds an entry for recipient. A non-nil err is recorded as the
// error detail. Timestamp is left for the store to assign.
func NewLogEntry(recipient string, status LogStatus, err error) LogEntry {
	e := LogEntry{Recipient: recipient, Status: status, Sender: SystemSender}
	if err != nil {
		msg := err.Error()
		e.Error = &msg
	}
	return e
}
