// Package metrics defines the sinks that observe charging decisions, charge
// sessions and vehicle state. PromSink and InfluxSink live in infra/metrics
// and register themselves with RegisterSink; NewSink builds the configured
// ones and fans out to several with a MultiSink.
package metrics
