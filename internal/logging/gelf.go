package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a JSON slog handler whose records are shipped to
// a Graylog input at address. Close the returned closer on shutdown.
func NewGELFHandler(address, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("creating gelf writer for %s: %w", address, err)
	}
	w.Facility = InstrumentationName
	return NewWriterHandler(w, level), w, nil
}

// NewWriterHandler returns a JSON handler on w using the same level and
// time formatting as Setup.
func NewWriterHandler(w io.Writer, level string) slog.Handler {
	return slog.NewJSONHandler(w, handlerOptions(parseLevel(level)))
}
