package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorSummarizesCounts(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&buf, nil)), 60)

	for i := 0; i < 3; i++ {
		agg.Record(CompNotif, "classified", slog.String("kind", "alert"))
	}
	agg.Flush()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "event_summary", rec["msg"])
	assert.EqualValues(t, 3, rec["count"])
	assert.Equal(t, "alert", rec["kind"])
}

func TestAggregatorStopFlushesOnce(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&buf, nil)), 60)
	agg.Start()
	agg.Record(CompRouter, "backlog_dropped")

	agg.Stop()
	agg.Stop()

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("event_summary")))
}

func TestAggregatorNilLoggerDrops(t *testing.T) {
	agg := NewAggregator(nil, 1)
	agg.Record(CompPty, "x")
	agg.Flush()
}
