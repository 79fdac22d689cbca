package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/couchcryptid/ccn-data-etl/internal/ingest"
)

// FileExtractor reads one or more raw minute CSVs and the instrument ini file.
type FileExtractor struct {
	RawPaths []string
	IniPath  string
	logger   *slog.Logger
}

// NewFileExtractor creates a FileExtractor.
func NewFileExtractor(rawPaths []string, iniPath string, logger *slog.Logger) *FileExtractor {
	return &FileExtractor{RawPaths: rawPaths, IniPath: iniPath, logger: logger}
}

// Extract implements Extractor.
func (e *FileExtractor) Extract(ctx context.Context) (Input, error) {
	if len(e.RawPaths) == 0 {
		return Input{}, errors.New("no raw input files")
	}
	if e.IniPath == "" {
		return Input{}, errors.New("no ini file")
	}

	ini, err := ingest.ReadIniFile(e.IniPath)
	if err != nil {
		return Input{}, err
	}
	for _, label := range ini.Missing {
		e.logger.Warn("ini label missing, using 0", "path", e.IniPath, "label", label)
	}
	for _, label := range ini.Invalid {
		e.logger.Warn("ini value unparseable, using 0", "path", e.IniPath, "label", label)
	}

	results := make([]ingest.RawResult, 0, len(e.RawPaths))
	for _, path := range e.RawPaths {
		if err := ctx.Err(); err != nil {
			return Input{}, err
		}
		res, err := ingest.ReadRawFile(path)
		if err != nil {
			return Input{}, err
		}
		attrs := []any{"path", path, "rows", humanize.Comma(int64(len(res.Samples)))}
		if fi, err := os.Stat(path); err == nil {
			attrs = append(attrs, "size", humanize.Bytes(uint64(fi.Size())))
		}
		e.logger.Info("raw file read", attrs...)
		if res.BadTimes > 0 {
			e.logger.Warn("raw rows with unparseable timestamps dropped", "path", path, "rows", res.BadTimes)
		}
		results = append(results, res)
	}

	merged := ingest.Merge(results...)
	if len(merged.Samples) == 0 {
		return Input{}, fmt.Errorf("%w: %v", ingest.ErrNoData, e.RawPaths)
	}
	return Input{
		Samples:     merged.Samples,
		Calibration: ini.Calibration,
		Setpoints:   ini.Setpoints,
		Duplicates:  merged.Duplicates,
	}, nil
}
