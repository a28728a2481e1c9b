// Package factory builds the optional metrics sinks listed under
// metrics.sinks in the service configuration. Each entry names a sink type
// (nop, prometheus or influx) and carries its settings in conf:
//
//	metrics:
//	  sinks:
//	    - type: influx
//	      conf:
//	        url: "http://localhost:8086"
//	        bucket: "smartcharge"
//
// Builders registered for a type decode conf with Decode, which also runs
// the target's Validate method when it has one.
package factory
