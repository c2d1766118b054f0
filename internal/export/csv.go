package export

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/sstent/gcexport/internal/garmin"
)

// LedgerName is the summary CSV's filename inside the output directory.
const LedgerName = "activities.csv"

// row is what the column extractors see: the activity plus the lookup tables
// that annotate it.
type row struct {
	a  garmin.Activity
	lk *garmin.Lookups
}

// column is one output column: a header name and an extractor. Missing source
// fields extract to "". The single table replaces the per-script duplication
// of the historical exporters and is what the header and every row iterate
// over.
type column struct {
	name    string
	extract func(r row) string
}

var ledgerColumns = []column{
	{"Activity ID", func(r row) string { return r.a.ID }},
	{"Activity Name", func(r row) string { return r.a.Name }},
	{"Description", func(r row) string { return r.a.Description }},
	{"Begin Timestamp", func(r row) string { return r.a.Begin.Display }},
	{"Begin Timestamp (Raw Milliseconds)", func(r row) string { return r.a.Begin.RawMillis() }},
	{"End Timestamp", func(r row) string { return r.a.End.Display }},
	{"End Timestamp (Raw Milliseconds)", func(r row) string { return r.a.End.RawMillis() }},
	{"Device", func(r row) string { return r.lk.DeviceName(r.a.DeviceID) }},
	{"Activity Parent", func(r row) string { return r.lk.ActivityTypeName(r.a.ActivityType.ParentTypeID) }},
	{"Activity Type", func(r row) string { return r.lk.ActivityTypeName(r.a.ActivityType.TypeID) }},
	{"Event Type", func(r row) string { return r.lk.EventTypeName(r.a.EventType.TypeID) }},
	{"Activity Time Zone", func(r row) string { return r.a.TimeZone }},
	{"Max. Elevation", func(r row) string { return r.a.MaxElevation.WithUnit }},
	{"Max. Elevation (Raw)", func(r row) string { return r.a.MaxElevation.Raw() }},
	{"Begin Latitude (Decimal Degrees Raw)", func(r row) string { return r.a.BeginLatitude.Raw() }},
	{"Begin Longitude (Decimal Degrees Raw)", func(r row) string { return r.a.BeginLongitude.Raw() }},
	{"End Latitude (Decimal Degrees Raw)", func(r row) string { return r.a.EndLatitude.Raw() }},
	{"End Longitude (Decimal Degrees Raw)", func(r row) string { return r.a.EndLongitude.Raw() }},
	{"Average Moving Speed", func(r row) string { return r.a.AvgMovingSpeed.Display }},
	{"Average Moving Speed (Raw)", func(r row) string { return r.a.AvgMovingSpeed.Raw() }},
	{"Max. Heart Rate (bpm)", func(r row) string { return r.a.MaxHeartRate.Display }},
	{"Average Heart Rate (bpm)", func(r row) string { return r.a.AvgHeartRate.Display }},
	{"Max. Speed", func(r row) string { return r.a.MaxSpeed.Display }},
	{"Max. Speed (Raw)", func(r row) string { return r.a.MaxSpeed.Raw() }},
	{"Calories", func(r row) string { return r.a.Calories.Display }},
	{"Calories (Raw)", func(r row) string { return r.a.Calories.Raw() }},
	{"Duration (h:m:s)", func(r row) string { return r.a.Duration.Display }},
	{"Duration (Raw Seconds)", func(r row) string { return r.a.Duration.Raw() }},
	{"Moving Duration (h:m:s)", func(r row) string { return r.a.MovingDuration.Display }},
	{"Moving Duration (Raw Seconds)", func(r row) string { return r.a.MovingDuration.Raw() }},
	{"Average Speed", func(r row) string { return r.a.AvgSpeed.WithUnit }},
	{"Average Speed (Raw)", func(r row) string { return r.a.AvgSpeed.Raw() }},
	{"Distance", func(r row) string { return r.a.Distance.WithUnit }},
	{"Distance (Raw)", func(r row) string { return r.a.Distance.Raw() }},
	{"Min. Heart Rate (bpm)", func(r row) string { return r.a.MinHeartRate.Display }},
	{"Min. Elevation", func(r row) string { return r.a.MinElevation.WithUnit }},
	{"Min. Elevation (Raw)", func(r row) string { return r.a.MinElevation.Raw() }},
	{"Elevation Gain", func(r row) string { return r.a.ElevationGain.WithUnit }},
	{"Elevation Gain (Raw)", func(r row) string { return r.a.ElevationGain.Raw() }},
	{"Elevation Loss", func(r row) string { return r.a.ElevationLoss.WithUnit }},
	{"Elevation Loss (Raw)", func(r row) string { return r.a.ElevationLoss.Raw() }},
}

// Ledger appends one summary row per exported activity to a CSV file. The
// header is written only when the file does not exist yet, so resumed runs
// append cleanly.
type Ledger struct {
	f *os.File
	w *csv.Writer
}

// OpenLedger opens or creates the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	l := &Ledger{f: f, w: csv.NewWriter(f)}
	if !existed {
		if err := l.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) writeHeader() error {
	header := make([]string, len(ledgerColumns))
	for i, c := range ledgerColumns {
		header[i] = c.name
	}
	if err := l.w.Write(header); err != nil {
		return fmt.Errorf("writing ledger header: %w", err)
	}
	l.w.Flush()
	return l.w.Error()
}

// Append writes one activity row and flushes, so a later abort loses nothing
// already processed.
func (l *Ledger) Append(a garmin.Activity, lk *garmin.Lookups) error {
	r := row{a: a, lk: lk}
	fields := make([]string, len(ledgerColumns))
	for i, c := range ledgerColumns {
		fields[i] = c.extract(r)
	}
	if err := l.w.Write(fields); err != nil {
		return fmt.Errorf("writing ledger row for %s: %w", a.ID, err)
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *Ledger) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
