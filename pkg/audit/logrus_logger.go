package audit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as JSON lines through logrus
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates an audit logger writing to output
func NewLogrusLogger(output io.Writer) *LogrusLogger {
	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &LogrusLogger{log: log}
}

// Log writes one event. Denials and failures are logged at warning level.
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	enrich(ctx, event)

	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.TenantID != "" {
		fields["tenant_id"] = event.TenantID
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	if event.Action != "" {
		fields["action"] = event.Action
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Method != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.ErrorMessage != "" {
		fields["error_message"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.log.WithFields(fields).WithTime(event.Timestamp)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op; logrus writes synchronously
func (l *LogrusLogger) Close() error {
	return nil
}
