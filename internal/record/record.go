package record

// Keys lists every key of an encoded LogRecord, in encoding order.
var Keys = []string{
	"log_date", "timestamp", "level", "application", "module", "logger",
	"thread", "host", "user_id", "request_id", "context", "environment",
	"message", "exception", "file_name", "line_number", "created_at",
	"updated_at", "app_id",
}

// LogRecord is one log line as delivered to the collector.
// Pointer and interface fields encode as null when unset.
type LogRecord struct {
	LogDate     string  `json:"log_date"`
	Timestamp   string  `json:"timestamp"`
	Level       string  `json:"level"`
	Application string  `json:"application"`
	Module      *string `json:"module"`
	Logger      *string `json:"logger"`
	Thread      *string `json:"thread"`
	Host        string  `json:"host"`
	UserID      any     `json:"user_id"`
	RequestID   any     `json:"request_id"`
	Context     string  `json:"context"`
	Environment string  `json:"environment"`
	Message     *string `json:"message"`
	Exception   *string `json:"exception"`
	FileName    *string `json:"file_name"`
	LineNumber  *int    `json:"line_number"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	AppID       int64   `json:"app_id"`
}
