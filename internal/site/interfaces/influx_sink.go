package interfaces

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	amr "energy-costing/internal/amr/domain"
	"energy-costing/internal/observability/metrics"
	site "energy-costing/internal/site/domain"
)

const (
	measurementConsolidated = "consolidated_consumption"
	defaultInfluxBatch      = 5000
	slotDuration            = 30 * time.Minute
)

// PointWriter is the blocking write side of an InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig configures the consolidated series sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes each consolidated meter's half-hourly kWh to InfluxDB.
type InfluxSink struct {
	writer    PointWriter
	batchSize int
	close     func()
}

// NewInfluxSink wraps an existing writer.
func NewInfluxSink(writer PointWriter, batchSize int) (*InfluxSink, error) {
	if writer == nil {
		return nil, errors.New("influx sink: nil writer")
	}
	if batchSize <= 0 {
		batchSize = defaultInfluxBatch
	}
	return &InfluxSink{writer: writer, batchSize: batchSize}, nil
}

// DialInflux connects to InfluxDB and verifies the server is healthy.
func DialInflux(ctx context.Context, cfg InfluxConfig) (*InfluxSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("influx sink: connect %s: %w", cfg.URL, err)
	}
	sink, err := NewInfluxSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), defaultInfluxBatch)
	if err != nil {
		client.Close()
		return nil, err
	}
	sink.close = client.Close
	return sink, nil
}

func (s *InfluxSink) Name() string { return "influx" }

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	if s.close != nil {
		s.close()
	}
}

// Write stores every slot of every consolidated meter.
func (s *InfluxSink) Write(ctx context.Context, result *site.Result) error {
	batch := make([]*write.Point, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.WritePoint(ctx, batch...); err != nil {
			metrics.ObserveSeriesSink(metrics.ResultError, len(batch))
			return fmt.Errorf("influx sink: site %d: %w", result.Site.URN, err)
		}
		metrics.ObserveSeriesSink(metrics.ResultSuccess, len(batch))
		batch = batch[:0]
		return nil
	}

	for _, m := range result.Consolidated() {
		tags := map[string]string{
			"site": strconv.FormatInt(result.Site.URN, 10),
			"mpxn": m.MPXN,
			"fuel": string(m.Fuel),
		}
		series := m.AggregatedSeries()
		for _, date := range series.Dates() {
			kwh := series.VectorFor(date)
			for slot, v := range kwh {
				batch = append(batch, write.NewPoint(
					measurementConsolidated,
					tags,
					map[string]interface{}{"kwh": v},
					SlotTime(date, slot),
				))
				if len(batch) == s.batchSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
	}
	return flush()
}

// SlotTime returns the start of a half-hour slot.
func SlotTime(date time.Time, slot int) time.Time {
	return amr.TruncateDay(date).Add(time.Duration(slot) * slotDuration)
}
