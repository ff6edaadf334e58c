// Package audit delivers operational and security-relevant events to an
// external webhook sink. Delivery is best effort: a failing sink never fails
// the operation that emitted the entry.
package audit

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Level categorizes an audit entry by severity.
type Level string

const (
	Informational Level = "INFORMATIONAL"
	Successful    Level = "SUCCESSFUL"
	Failure       Level = "FAILURE"
)

// Sink is the fire-and-forget audit destination consumed by the workflow.
type Sink interface {
	Log(ctx context.Context, message string, level Level)
}

// Webhook posts audit entries to a configured webhook URL.
type Webhook struct {
	URL    string
	Client *http.Client
	Logger *logrus.Logger
}

type entry struct {
	Level     Level  `json:"level"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func NewWebhook(url string, logger *logrus.Logger) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger,
	}
}

// Log emits one entry and swallows every failure. It runs to completion
// before returning so emission stays ordered ahead of response delivery.
func (w *Webhook) Log(ctx context.Context, message string, level Level) {
	if w == nil || w.URL == "" {
		return
	}
	payload, err := json.Marshal(entry{
		Level:     level,
		Content:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		w.warn("marshal audit entry", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(payload))
	if err != nil {
		w.warn("build audit request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		w.warn("deliver audit entry", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest && w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"level":  level,
		}).Warn("audit sink rejected entry")
	}
}

func (w *Webhook) warn(op string, err error) {
	if w.Logger == nil {
		return
	}
	w.Logger.WithFields(logrus.Fields{
		"code": err.Error(),
	}).Warnf("audit: %s failed", op)
}
