package metrics

import "github.com/kilianp07/smartcharge/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.Spec `json:"sinks" yaml:"sinks"`
	// ListenAddr serves /metrics and the status API. Empty means :9100.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}
