package export

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// Loader hands each dataset to a Writer. It implements pipeline.Loader.
type Loader struct {
	writer Writer
	dir    string
	logger *slog.Logger
}

// NewLoader creates a Loader writing into dir.
func NewLoader(w Writer, dir string, logger *slog.Logger) *Loader {
	return &Loader{writer: w, dir: dir, logger: logger}
}

// Load reshapes ds and writes one interchange file. An empty dataset is
// skipped with a warning.
func (l *Loader) Load(ctx context.Context, ds domain.Dataset) error {
	if len(ds.Records) == 0 {
		l.logger.Warn("nothing to export", "dir", l.dir)
		return nil
	}
	table := ds.Export()
	path, err := l.writer.Write(ctx, l.dir, table)
	if err != nil {
		return err
	}
	l.logger.Info("export file written",
		"path", path,
		"variables", len(table.Names),
		"samples", len(table.Samples),
		"intervals", len(table.Intervals),
	)
	return nil
}
