//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/ccn-data-etl/internal/ingest"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker for the duration of the test and
// returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("ccn-etl-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeRaw writes n minute rows of counter output at one setpoint.
func writeRaw(t *testing.T, dir, name string, start time.Time, n int, setpoint, dT float64) string {
	t.Helper()

	headers := []string{ingest.TimeColumn}
	units := []string{"UTC"}
	for _, c := range ingest.Columns {
		headers = append(headers, `"`+c.Header+`"`)
		units = append(units, c.Name)
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ",") + "\n")
	b.WriteString(strings.Join(units, ",") + "\n")
	for i := range n {
		ts := start.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%s,%g,24,22,%g,26,0,25,23,0.5,5,%g,1013.25\n", ts, setpoint*1000, 22+dT, setpoint)
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func writeIni(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "CCN.ini")
	body := "TG Dum = 4.1\nTemp Gradient Slope = 10\nTemp Gradient Y-intercept = 0\nLast Date Updated = 2025-03-14\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
