// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementPerf is the influx measurement perf samples are written to.
const MeasurementPerf = "scanner_perf"

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"required,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

// InfluxSink writes samples as points, tagged with the task name and any
// static tags.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	tags     map[string]string
}

// NewInfluxSink connects lazily; no request is made until the first write.
func NewInfluxSink(cfg InfluxConfig, tags map[string]string) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return newInfluxSink(client, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), tags)
}

func newInfluxSink(client influxdb2.Client, w api.WriteAPIBlocking, tags map[string]string) *InfluxSink {
	return &InfluxSink{client: client, writeAPI: w, tags: tags}
}

// Write implements Sink.
func (s *InfluxSink) Write(ctx context.Context, task string, sample Sample) error {
	if err := s.writeAPI.WritePoint(ctx, perfPoint(task, sample, s.tags)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func perfPoint(task string, sample Sample, tags map[string]string) *write.Point {
	p := influxdb2.NewPointWithMeasurement(MeasurementPerf).
		AddTag("task", task)
	for k, v := range tags {
		p.AddTag(k, v)
	}
	return p.
		AddField("count", sample.Count).
		AddField("rate", sample.Rate).
		SetTime(sample.At)
}
