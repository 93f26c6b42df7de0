// Package observability provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the agent runtime.
//
// # Overview
//
// Three pillars, mirrored from the teacher's observability package with the
// vocabulary moved from channels/sessions to runs/gadgets/providers:
//
//  1. Metrics - run, LLM, gadget, and hook counters/histograms
//  2. Logging - structured logs with sensitive-data redaction
//  3. Tracing - spans around a run's LLM calls, gadget executions, and hooks
package observability
