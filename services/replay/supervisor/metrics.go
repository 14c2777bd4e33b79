// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.replay.supervisor")
	meter  = otel.Meter("aleutian.replay.supervisor")
)

var (
	buildLatency  metric.Float64Histogram
	launchLatency metric.Float64Histogram
	launchTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"replay_build_duration_seconds",
			metric.WithDescription("Duration of builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		launchLatency, err = meter.Float64Histogram(
			"replay_launch_duration_seconds",
			metric.WithDescription("Time from spawn to handshake"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		launchTotal, err = meter.Int64Counter(
			"replay_launch_total",
			metric.WithDescription("Launches by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuild(ctx context.Context, kind string, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	))
}

func recordLaunch(ctx context.Context, d time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	launchLatency.Record(ctx, d.Seconds(), attrs)
	launchTotal.Add(ctx, 1, attrs)
}
