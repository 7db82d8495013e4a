package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/hydrofetch/internal/domain"
	"github.com/couchcryptid/hydrofetch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testSummary() *domain.RunSummary {
	s := &domain.RunSummary{
		RunID:      "7f1c2a",
		Source:     domain.SourceNOAA,
		Product:    domain.ProductWaterLevel,
		Boundary:   domain.BBox{MinLon: -91, MinLat: 29, MaxLon: -89, MaxLat: 31},
		Window:     domain.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		StartedAt:  time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 4, 1, 12, 5, 0, 0, time.UTC),
		Considered: 2,
	}
	s.Record(domain.StationOutcome{StationID: "8761724", Status: domain.StatusSuccess, Rows: 2160})
	s.Record(domain.StationOutcome{StationID: "8761927", Status: domain.StatusFailed, Stage: domain.StageFetch, Err: errors.New("fetch failure")})
	return s
}

func TestSerializeToMessage(t *testing.T) {
	s := testSummary()
	msg, err := serializeToMessage(s, KindSummary, newSummaryMessage(s))
	require.NoError(t, err)

	assert.Equal(t, []byte("7f1c2a"), msg.Key)
	assert.Contains(t, string(msg.Value), `"product":"water_level"`)
	assert.Contains(t, string(msg.Value), `"start_date":"2024-01-01"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, []byte("noaa"), msg.Headers[0].Value)
	assert.Equal(t, "product", msg.Headers[1].Key)
	assert.Equal(t, []byte("water_level"), msg.Headers[1].Value)
	assert.Equal(t, "kind", msg.Headers[2].Key)
	assert.Equal(t, []byte(KindSummary), msg.Headers[2].Value)
}

func TestPublisher_PublishRun(t *testing.T) {
	fw := &fakeWriter{}
	metrics := observability.NewMetricsForTesting()
	p := &Publisher{writer: fw, metrics: metrics, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, p.PublishRun(context.Background(), testSummary()))
	require.Len(t, fw.msgs, 3)

	var failed map[string]any
	require.NoError(t, json.Unmarshal(fw.msgs[1].Value, &failed))
	assert.Equal(t, "8761927", failed["station_id"])
	assert.Equal(t, "failed", failed["status"])
	assert.Equal(t, "fetch failure", failed["error"])
	assert.Equal(t, "7f1c2a", failed["run_id"])

	var summary summaryMessage
	require.NoError(t, json.Unmarshal(fw.msgs[2].Value, &summary))
	assert.Equal(t, 2, summary.Counts.Attempted)
	assert.Equal(t, 1, summary.Counts.Failed)
	assert.Equal(t, domain.ProductWaterLevel, summary.Product)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.MessagesProduced), 0)
}

func TestPublisher_WriteError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker unreachable")}
	p := &Publisher{writer: fw, metrics: observability.NewMetricsForTesting(), logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := p.PublishRun(context.Background(), testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "7f1c2a")
}
