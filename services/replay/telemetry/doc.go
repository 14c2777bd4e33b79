// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up OpenTelemetry for the replay host.
//
// Every package records spans and metrics through otel.Tracer and
// otel.Meter; this package decides where they go. Traces can be exported
// over OTLP gRPC or pretty-printed, metrics are served to Prometheus from a
// dedicated registry or pretty-printed. Both default to "none" for traces
// and "prometheus" for metrics so the CLI works without a collector.
//
// # Usage
//
//	p, err := telemetry.Init(ctx, cfg.Telemetry)
//	if err != nil {
//	    return fmt.Errorf("start telemetry: %w", err)
//	}
//	defer p.Shutdown(context.Background())
//	router.GET("/metrics", gin.WrapH(p.MetricsHandler()))
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout or none
//   - OTEL_METRICS_EXPORTER: prometheus, stdout or none
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - REPLAY_ENV: deployment environment (default: development)
package telemetry
