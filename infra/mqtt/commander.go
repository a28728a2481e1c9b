package mqtt

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/smartcharge/infra/logger"
)

// Commander issues OVMS shell commands over MQTT. It implements
// charging.ChargeController and, when native auto-stop is enabled,
// charging.AutoStopper.
type Commander struct {
	conn   Conn
	topics Topics
	log    logger.Logger
}

// NewCommander subscribes to command responses and returns the commander.
// Responses are only logged; a command counts as sent once published.
func NewCommander(conn Conn, topics Topics) (*Commander, error) {
	c := &Commander{conn: conn, topics: topics, log: logger.New("ovms-commander")}
	if err := conn.Subscribe(topics.Responses(), c.onResponse); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Commander) onResponse(topic string, payload []byte) {
	c.log.Debugw("command response", map[string]any{"id": LastSegment(topic), "response": string(payload)})
}

// Send publishes one shell command and returns its id.
func (c *Commander) Send(ctx context.Context, command string) (string, error) {
	id := uuid.NewString()
	if err := c.conn.Publish(ctx, c.topics.Command(id), false, []byte(command)); err != nil {
		return "", fmt.Errorf("send %q: %w", command, err)
	}
	c.log.Infof("sent %q (%s)", command, id)
	return id, nil
}

// StartCharge asks the vehicle to start charging.
func (c *Commander) StartCharge(ctx context.Context) error {
	_, err := c.Send(ctx, "charge start")
	return err
}

// StopCharge asks the vehicle to stop charging.
func (c *Commander) StopCharge(ctx context.Context) error {
	_, err := c.Send(ctx, "charge stop")
	return err
}

// SetAutoStopTarget enables the vehicle's own stop at percent.
func (c *Commander) SetAutoStopTarget(ctx context.Context, percent int) error {
	if _, err := c.Send(ctx, "config set xnl autocharge yes"); err != nil {
		return err
	}
	_, err := c.Send(ctx, fmt.Sprintf("config set xnl suffsoc %d", percent))
	return err
}
