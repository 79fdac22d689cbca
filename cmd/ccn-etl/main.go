// Command ccn-etl processes raw CCN counter output into averaged, corrected
// and flagged buckets, then writes them to every configured sink.
//
// Usage:
//
//	ccn-etl -input "data/CCN 100 data 250601.csv,data/CCN 100 data 250602.csv" \
//	  -ini data/CCN.ini -out out/ccn_processed.csv -profile profile.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ccn-data-etl/internal/adapter/csvout"
	"github.com/couchcryptid/ccn-data-etl/internal/adapter/export"
	kafkaadapter "github.com/couchcryptid/ccn-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/ccn-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/ccn-data-etl/internal/config"
	"github.com/couchcryptid/ccn-data-etl/internal/observability"
	"github.com/couchcryptid/ccn-data-etl/internal/pipeline"
)

func main() {
	input := flag.String("input", "", "comma-separated raw counter CSV files")
	ini := flag.String("ini", "", "instrument ini file with the temperature gradient calibration")
	out := flag.String("out", "ccn_processed.csv", "processed CSV output path")
	exportDir := flag.String("export-dir", "", "interchange file directory (overrides the profile)")
	profilePath := flag.String("profile", "", "processing profile (YAML); defaults apply when empty")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if *input == "" || *ini == "" {
		flag.Usage()
		logger.Error("missing required flags: -input, -ini")
		os.Exit(2)
	}

	if err := run(cfg, logger, args{
		rawPaths:  splitPaths(*input),
		iniPath:   *ini,
		outPath:   *out,
		exportDir: *exportDir,
		profile:   *profilePath,
	}); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

type args struct {
	rawPaths  []string
	iniPath   string
	outPath   string
	exportDir string
	profile   string
}

func run(cfg *config.Config, logger *slog.Logger, a args) error {
	profile, err := config.LoadProfile(a.profile)
	if err != nil {
		return err
	}
	opts, err := options(profile)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	p := pipeline.New(pipeline.NewFileExtractor(a.rawPaths, a.iniPath, logger), opts, logger, metrics, clock)
	p.AddLoader("csv", csvout.NewWriter(a.outPath, logger))

	dir := profile.Export.Dir
	if a.exportDir != "" {
		dir = a.exportDir
	}
	if dir != "" {
		meta, err := export.LoadMetadata(profile.Export.Metadata)
		if err != nil {
			return err
		}
		p.AddLoader("export", export.NewLoader(export.NewAmesWriter(meta, clock), dir, logger))
		logger.Info("interchange export enabled", "dir", dir, "station", meta.Station.Code)
	}

	if cfg.SQLitePath != "" {
		store := sqlite.NewStore(cfg.SQLitePath, logger)
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("sqlite close error", "error", err)
			}
		}()
		p.AddLoader("sqlite", store)
		logger.Info("sqlite archive enabled", "path", cfg.SQLitePath)
	}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		p.AddLoader("kafka", writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, cfg.PushJob); err != nil {
			logger.Error("metrics push error", "error", err)
		}
	}
	return runErr
}

// options builds the transform options from a loaded profile.
func options(profile *config.Profile) (pipeline.Options, error) {
	periods, err := profile.PeriodSetpoints()
	if err != nil {
		return pipeline.Options{}, err
	}
	calibrations, err := profile.CalibrationPeriods()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Average:        profile.AverageOptions(),
		Periods:        periods,
		Calibrations:   calibrations,
		DeviationLimit: profile.Averaging.DeviationLimit,
		Thresholds:     profile.FlagThresholds(),

		DiscoverSetpoints: profile.Averaging.DiscoverSetpoints,
	}, nil
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
