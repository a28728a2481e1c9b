package mqtt

import "strings"

// Topics builds the OVMS topic names for one vehicle. Prefix is usually
// "ovms/<user>/<vehicle_id>".
type Topics struct {
	Prefix   string
	ClientID string
}

func (t Topics) join(parts ...string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + strings.Join(parts, "/")
}

// Metric is the retained topic of an OVMS metric such as "v/b/soc".
func (t Topics) Metric(name string) string { return t.join("metric", name) }

// Event is the topic carrying OVMS event names.
func (t Topics) Event() string { return t.join("event") }

// Command is the topic an OVMS shell command with the given id is sent to.
func (t Topics) Command(id string) string { return t.join("client", t.ClientID, "command", id) }

// Responses matches every command response addressed to this client.
func (t Topics) Responses() string { return t.join("client", t.ClientID, "response", "+") }

// Notify is the topic user notifications are published on.
func (t Topics) Notify() string { return t.join("smartcharge", "notify") }

// UserCommand is the topic a remote user command with the given id arrives on.
// Use "+" to match every request.
func (t Topics) UserCommand(id string) string { return t.join("smartcharge", "command", id) }

// UserResponse is the topic the reply to a user command is published on.
func (t Topics) UserResponse(id string) string { return t.join("smartcharge", "response", id) }

// LastSegment returns the part of topic after the final slash.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
