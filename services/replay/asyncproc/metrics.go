// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package asyncproc

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.replay.asyncproc")

var (
	spawnTotal metric.Int64Counter
	killTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		spawnTotal, err = meter.Int64Counter(
			"replay_process_spawns_total",
			metric.WithDescription("Total number of client process spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		killTotal, err = meter.Int64Counter(
			"replay_process_kills_total",
			metric.WithDescription("Total number of client processes killed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	spawnTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordKill(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	killTotal.Add(ctx, 1)
}
