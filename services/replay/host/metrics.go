// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.replay.host")
	meter  = otel.Meter("aleutian.replay.host")
)

var (
	generationTotal    metric.Int64Counter
	protocolErrorTotal metric.Int64Counter
	notificationTotal  metric.Int64Counter
	watchLatency       metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		generationTotal, err = meter.Int64Counter(
			"replay_generations_total",
			metric.WithDescription("Generations started by document changes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		protocolErrorTotal, err = meter.Int64Counter(
			"replay_protocol_errors_total",
			metric.WithDescription("Client lines rejected by the host"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		notificationTotal, err = meter.Int64Counter(
			"replay_adornment_notifications_total",
			metric.WithDescription("Adornment notifications sent to the editor"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		watchLatency, err = meter.Float64Histogram(
			"replay_watch_round_trip_seconds",
			metric.WithDescription("Time from WATCH to its END watch"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordGeneration(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	generationTotal.Add(ctx, 1)
}

func recordProtocolError(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	protocolErrorTotal.Add(ctx, 1)
}

func recordNotification(ctx context.Context, isAdd bool) {
	if err := initMetrics(); err != nil {
		return
	}
	notificationTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("add", isAdd)))
}

func recordWatchRoundTrip(ctx context.Context, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	watchLatency.Record(ctx, d.Seconds())
}
