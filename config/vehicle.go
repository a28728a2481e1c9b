package config

import (
	"fmt"
	"strings"
	"time"
)

// VehicleConfig locates the vehicle on the broker.
type VehicleConfig struct {
	// TopicPrefix is the OVMS server v3 prefix, e.g. ovms/<user>/<vehicle id>.
	TopicPrefix string `json:"topic_prefix"`
	// ClientID names this service in OVMS command topics.
	ClientID string `json:"client_id"`
	// StaleAfterSeconds marks metrics older than this as unavailable. Zero
	// disables the check.
	StaleAfterSeconds int `json:"stale_after_seconds"`
	// NativeAutoStop lets the vehicle stop at the target SOC itself.
	NativeAutoStop bool `json:"native_auto_stop"`
	// CommandTimeoutSeconds bounds the wait for a reply to a user command.
	CommandTimeoutSeconds int `json:"command_timeout_seconds"`
}

func (c *VehicleConfig) SetDefaults() {
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "smartcharge"
	}
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = 10
	}
}

func (c VehicleConfig) Validate() error {
	if c.TopicPrefix == "" {
		return fmt.Errorf("topic_prefix is required")
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") || strings.ContainsAny(c.ClientID, "/+#") {
		return fmt.Errorf("topic_prefix and client_id must not contain wildcards")
	}
	if c.StaleAfterSeconds < 0 {
		return fmt.Errorf("stale_after_seconds must not be negative")
	}
	return nil
}

func (c VehicleConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

func (c VehicleConfig) CommandTimeout() time.Duration {
	if c.CommandTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}
