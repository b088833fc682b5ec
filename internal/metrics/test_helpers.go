package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricValue collects a single-series collector (a Gauge, Counter or one
// child of a vector) and returns its current value.
func metricValue(c prometheus.Collector) (float64, error) {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	m, ok := <-ch
	if !ok {
		return 0, fmt.Errorf("collector produced no metric")
	}

	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		return 0, err
	}

	switch {
	case pb.Gauge != nil:
		return pb.Gauge.GetValue(), nil
	case pb.Counter != nil:
		return pb.Counter.GetValue(), nil
	default:
		return 0, fmt.Errorf("unsupported metric type")
	}
}

// seriesCount returns how many label combinations a vector currently holds.
func seriesCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	n := 0
	for range ch {
		n++
	}
	return n
}
