// Package infra contains technical adapters: the MQTT connection and OVMS
// adapters, vehicle telemetry, the settings file store, logging and metrics
// exporters. These packages depend only on the interfaces defined in core.
package infra
