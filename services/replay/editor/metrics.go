// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package editor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.replay.editor")

var (
	sessionsActive metric.Int64UpDownCounter
	commandTotal   metric.Int64Counter
	throttledTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		sessionsActive, err = meter.Int64UpDownCounter(
			"replay_editor_sessions_active",
			metric.WithDescription("Connected editor sessions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"replay_editor_commands_total",
			metric.WithDescription("Editor commands by verb"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		throttledTotal, err = meter.Int64Counter(
			"replay_editor_throttled_total",
			metric.WithDescription("Editor commands dropped by the rate limiter"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSession(ctx context.Context, delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionsActive.Add(ctx, delta)
}

func recordCommand(ctx context.Context, verb string) {
	if err := initMetrics(); err != nil {
		return
	}
	commandTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("verb", verb)))
}

func recordThrottled(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	throttledTotal.Add(ctx, 1)
}
