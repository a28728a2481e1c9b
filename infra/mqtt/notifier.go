package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/smartcharge/infra/logger"
)

// Notification is the JSON document published for every user notification.
type Notification struct {
	Severity string    `json:"severity"`
	Topic    string    `json:"topic"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Notifier publishes notifications to the notify topic.
type Notifier struct {
	conn   Conn
	topics Topics
	now    func() time.Time
	log    logger.Logger
}

// NewNotifier creates a notifier publishing on topics.Notify().
func NewNotifier(conn Conn, topics Topics) *Notifier {
	return &Notifier{conn: conn, topics: topics, now: time.Now, log: logger.New("notifier")}
}

// Raise publishes the notification. Failures are logged and swallowed.
func (n *Notifier) Raise(ctx context.Context, severity, topic, message string) error {
	payload, err := json.Marshal(Notification{Severity: severity, Topic: topic, Message: message, Time: n.now()})
	if err != nil {
		n.log.Errorf("encode notification: %v", err)
		return nil
	}
	if err := n.conn.Publish(ctx, n.topics.Notify(), false, payload); err != nil {
		n.log.Warnf("notification dropped: %v", err)
	}
	return nil
}
