package normalize

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const (
	DefaultBarcodeMinimum = 1
	DefaultBarcodeMaximum = 100
)

var (
	looseBarcodeRe   = regexp.MustCompile(`(?i)^[a-z0-9_]+$`)
	numericBarcodeRe = regexp.MustCompile(`^[0-9]+$`)
)

// Barcodes normalizes library card numbers. MinimumWidth is the narrowest
// barcode the ILS will take; it also bounds the windows callers may ask for.
type Barcodes struct {
	MinimumWidth int
	logger       *slog.Logger
}

// NewBarcodes returns a barcode normalizer. minimumWidth < 1 means 1.
func NewBarcodes(minimumWidth int, logger *slog.Logger) *Barcodes {
	if minimumWidth < 1 {
		minimumWidth = DefaultBarcodeMinimum
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Barcodes{MinimumWidth: minimumWidth, logger: logger}
}

// Loose accepts letters, digits and underscores and upper-cases the result.
func (b *Barcodes) Loose(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) < b.MinimumWidth || !looseBarcodeRe.MatchString(s) {
		return ""
	}
	return strings.ToUpper(s)
}

// Numeric accepts digit strings whose length falls in [minimum, maximum].
// Nonsensical bounds are replaced by the defaults with a warning.
func (b *Barcodes) Numeric(raw string, minimum, maximum int) string {
	minimum, maximum = b.Window(minimum, maximum)
	s := strings.TrimSpace(raw)
	if !numericBarcodeRe.MatchString(s) {
		return ""
	}
	if len(s) < minimum || len(s) > maximum {
		return ""
	}
	return s
}

// Window returns the effective [minimum, maximum] width for Numeric.
func (b *Barcodes) Window(minimum, maximum int) (int, int) {
	if maximum <= 0 || maximum <= b.MinimumWidth || maximum <= minimum {
		b.logger.Warn("invalid barcode maximum, using default",
			"maximum", maximum,
			"default", DefaultBarcodeMaximum,
		)
		maximum = DefaultBarcodeMaximum
	}
	if minimum <= 0 || minimum < b.MinimumWidth || minimum >= maximum {
		b.logger.Warn("invalid barcode minimum, using default",
			"minimum", minimum,
			"default", DefaultBarcodeMinimum,
		)
		minimum = DefaultBarcodeMinimum
	}
	return minimum, maximum
}
