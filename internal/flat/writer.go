package flat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	dErrors "ilsgate/pkg/domain-errors"
	"ilsgate/pkg/platform/sentinel"
)

// Writer persists flat records. Given no path, records go to the sink.
type Writer struct {
	fs        afero.Fs
	overwrite bool
	sink      io.Writer
	logger    *slog.Logger
}

type WriterOption func(*Writer)

func WithFs(fs afero.Fs) WriterOption {
	return func(w *Writer) {
		w.fs = fs
	}
}

// WithOverwrite controls whether an existing file is replaced. The default
// is to replace it.
func WithOverwrite(overwrite bool) WriterOption {
	return func(w *Writer) {
		w.overwrite = overwrite
	}
}

func WithSink(sink io.Writer) WriterOption {
	return func(w *Writer) {
		w.sink = sink
	}
}

func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{fs: afero.NewOsFs(), overwrite: true, sink: os.Stdout}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w
}

// Write persists rec at path. The parent directory must already exist.
// A failed write leaves rec usable.
func (w *Writer) Write(rec *Record, path string) error {
	if rec == nil || !rec.OK() {
		return dErrors.New(dErrors.CodeInvalidInput, "flat record has no lines to write")
	}
	data := []byte(rec.String() + "\n")

	if path == "" {
		if _, err := w.sink.Write(data); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write flat record to sink")
		}
		return nil
	}

	dir := filepath.Dir(path)
	ok, err := afero.DirExists(w.fs, dir)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to stat %s", dir))
	}
	if !ok {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("output directory %s does not exist", dir))
	}

	if w.overwrite {
		if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to write %s", path))
		}
	} else if err := w.create(path, data); err != nil {
		return err
	}
	w.logger.Debug("flat record written", "path", path, "bytes", len(data))
	return nil
}

func (w *Writer) create(path string, data []byte) error {
	f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, fmt.Sprintf("%s already exists", path))
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to create %s", path))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to write %s", path))
	}
	if err := f.Close(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to close %s", path))
	}
	return nil
}
