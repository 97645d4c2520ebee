package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
)

// StartRemoteWrite pushes the registry to Mimir every FlushInterval until ctx
// is done. It returns immediately when no Mimir URL is configured.
func (c *Collector) StartRemoteWrite(ctx context.Context, logger *zap.Logger) {
	if c.config.URL == "" {
		return
	}

	client := NewMimirClient(c.config.URL, c.config.TenantHeader, c.config.TenantID, c.config.AuthToken)
	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeToMimir(ctx, client); err != nil {
				logger.Warn("Remote write failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) writeToMimir(ctx context.Context, client *MimirClient) error {
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	samples := metricsToSamples(mfs, time.Now())
	if len(samples) == 0 {
		return nil
	}

	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(samples)
	}

	for i := 0; i < len(samples); i += batchSize {
		end := i + batchSize
		if end > len(samples) {
			end = len(samples)
		}

		if err := client.Push(ctx, samples[i:end]); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	return nil
}

func metricsToSamples(mfs []*dto.MetricFamily, now time.Time) []prompb.TimeSeries {
	var samples []prompb.TimeSeries
	ts := now.UnixMilli()

	for _, mf := range mfs {
		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label)+2)
			labels = append(labels, prompb.Label{Name: "__name__", Value: mf.GetName()})
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				samples = append(samples, series(labels, m.Counter.GetValue(), ts))
			case dto.MetricType_GAUGE:
				samples = append(samples, series(labels, m.Gauge.GetValue(), ts))
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				base := labels[1:]
				for _, bucket := range hist.Bucket {
					bucketLabels := withName(base, mf.GetName()+"_bucket")
					bucketLabels = append(bucketLabels, prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})
					samples = append(samples, series(bucketLabels, float64(bucket.GetCumulativeCount()), ts))
				}
				infLabels := withName(base, mf.GetName()+"_bucket")
				infLabels = append(infLabels, prompb.Label{Name: "le", Value: fmt.Sprintf("%g", math.Inf(1))})
				samples = append(samples,
					series(infLabels, float64(hist.GetSampleCount()), ts),
					series(withName(base, mf.GetName()+"_sum"), hist.GetSampleSum(), ts),
					series(withName(base, mf.GetName()+"_count"), float64(hist.GetSampleCount()), ts),
				)
			}
		}
	}

	return samples
}

func withName(labels []prompb.Label, name string) []prompb.Label {
	out := make([]prompb.Label, 0, len(labels)+2)
	out = append(out, prompb.Label{Name: "__name__", Value: name})
	return append(out, labels...)
}

// series sorts labels by name; remote-write receivers reject unsorted series.
func series(labels []prompb.Label, value float64, ts int64) prompb.TimeSeries {
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
	}
}
