//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/acquire"
	"github.com/couchcryptid/airquality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/airquality-etl/internal/adapter/ledger"
	"github.com/couchcryptid/airquality-etl/internal/archive"
	"github.com/couchcryptid/airquality-etl/internal/config"
	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-openmeteo-artifacts"

// TestAcquisitionPublishesEvents drives a budget-limited acquisition against a
// fake archive and checks the events that reach Kafka and the ledger.
func TestAcquisitionPublishesEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	var hits atomic.Int32
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "time,temperature_2m\n"+r.URL.Query().Get("latitude")+"\n")
	}))
	t.Cleanup(archiveSrv.Close)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewPublisher(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = publisher.Close() })

	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	out := t.TempDir()
	loop := acquire.NewLoop(
		archive.NewClient(5*time.Second, metrics, discardLogger()),
		acquire.Options{BaseURL: archiveSrv.URL, OutputDir: out, CallBudget: 2, FailureBudget: 3},
		discardLogger(), metrics,
		acquire.WithArtifactSink(publisher),
		acquire.WithRunID("it-run"),
	)
	driver := acquire.NewDriver(loop, acquire.RetryPolicy{MaxAttempts: 3}, discardLogger(),
		acquire.WithPassRecorder(publisher),
		acquire.WithPassRecorder(led),
		acquire.WithDriverRunID("it-run"),
	)

	stations := make([]domain.Station, 0, 5)
	for i := range 5 {
		stations = append(stations, domain.Station{
			OriginalID: fmt.Sprintf("S%d", i),
			Latitude:   fmt.Sprintf("50.%d", i),
			Longitude:  "19.9",
		})
	}
	require.NoError(t, driver.Run(ctx, stations, []domain.Period{2018}))
	assert.Equal(t, int32(5), hits.Load())

	passes, err := led.Passes(ctx, 2018)
	require.NoError(t, err)
	require.Len(t, passes, 3)
	assert.Equal(t, "budget_exhausted", passes[0].Outcome)
	assert.Equal(t, "complete", passes[2].Outcome)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	kinds := map[string]int{}
	var artifacts []domain.ArtifactEvent
	for range 8 { // 5 artifacts + 3 passes
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from event topic")

		kind := ""
		for _, h := range msg.Headers {
			if h.Key == "kind" {
				kind = string(h.Value)
			}
		}
		kinds[kind]++
		if kind == kafka.KindArtifact {
			var ev domain.ArtifactEvent
			require.NoError(t, json.Unmarshal(msg.Value, &ev))
			artifacts = append(artifacts, ev)
		}
	}

	assert.Equal(t, 5, kinds[kafka.KindArtifact])
	assert.Equal(t, 3, kinds[kafka.KindPass])
	for _, ev := range artifacts {
		assert.Equal(t, "it-run", ev.RunID)
		assert.FileExists(t, ev.Path)
	}
}
