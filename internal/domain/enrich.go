package domain

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/band"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/geodesic"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/maidenhead"
)

// ErrNoSenderGrid is returned for derived values that need the sender's locator.
var ErrNoSenderGrid = errors.New("entry has no sender grid")

// Enricher computes the derived properties of an Entry: geodesic distance and
// bearing, sender coordinates, and band. It holds only read-only collaborators
// and is safe for concurrent use.
type Enricher struct {
	geo    geodesic.Calculator
	bands  *band.Table
	logger *slog.Logger
}

// NewEnricher creates an Enricher. A nil band table selects band.Default.
func NewEnricher(geo geodesic.Calculator, bands *band.Table, logger *slog.Logger) *Enricher {
	if bands == nil {
		bands = band.Default()
	}
	return &Enricher{geo: geo, bands: bands, logger: logger}
}

// DistanceBearing returns the distance and bearing from the receiver to the
// sender, measured between locator cell centers.
func (x *Enricher) DistanceBearing(e Entry) (geodesic.DistanceBearing, error) {
	if !e.HasSenderGrid() {
		return geodesic.DistanceBearing{}, ErrNoSenderGrid
	}
	db, err := x.geo.DistanceBearing(e.ReceiverGrid, e.SenderGrid, true)
	if err != nil {
		return geodesic.DistanceBearing{}, fmt.Errorf("distance %s to %s: %w", e.ReceiverGrid, e.SenderGrid, err)
	}
	return db, nil
}

// SenderCoordinates returns the center of the sender's locator.
func (x *Enricher) SenderCoordinates(e Entry) (maidenhead.DecimalDegrees, error) {
	if !e.HasSenderGrid() {
		return maidenhead.DecimalDegrees{}, ErrNoSenderGrid
	}
	return maidenhead.Decode(e.SenderGrid, true)
}

// BandName classifies the entry's frequency.
func (x *Enricher) BandName(e Entry) (string, bool) {
	return x.bands.Classify(e.Frequency)
}
