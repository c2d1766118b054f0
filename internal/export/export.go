package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sstent/gcexport/internal/garmin"
)

// Source downloads activity payloads. Satisfied by *garmin.Client.
type Source interface {
	DownloadActivity(ctx context.Context, id string, f garmin.Format) ([]byte, error)
}

// Pager yields pages of activity records until it returns an empty page.
// Satisfied by *garmin.Paginator.
type Pager interface {
	Next(ctx context.Context) ([]garmin.Activity, error)
}

// Sink receives one flattened summary row per processed activity. Satisfied
// by *Ledger.
type Sink interface {
	Append(a garmin.Activity, lk *garmin.Lookups) error
}

// Marker records a completed download in the local activity cache. Optional.
type Marker interface {
	MarkDownloaded(id, filename string) error
}

// Counts summarizes one export run.
type Counts struct {
	Downloaded int
	Skipped    int
	Empty      int
	NoTrack    int
}

// Exporter drives the per-activity download loop. Resumability comes
// entirely from Filename determinism plus the skip-if-exists rule; there is
// no other checkpoint, so re-running after a partial failure is always safe.
type Exporter struct {
	Source  Source
	Store   FileStore
	Sink    Sink
	Lookups *garmin.Lookups
	Format  garmin.Format
	Unzip   bool
	Marker  Marker
}

// Filename is the deterministic target name for (activity, format). Same
// inputs, same name, always; this is what makes skip-on-exists an idempotence
// guarantee rather than a heuristic.
func Filename(id string, f garmin.Format) string {
	return fmt.Sprintf("activity_%s.%s", id, f.Ext())
}

// fitSibling is the extraction product checked alongside an original-format
// zip, so an unzipped earlier run still skips.
func fitSibling(id string) string {
	return fmt.Sprintf("activity_%s.fit", id)
}

// Run consumes the pager and processes every record. Any error aborts the
// run with no further writes; files and ledger rows already written stay for
// the next, resumed invocation. Cancellation is honored between activities,
// never mid-download.
func (e *Exporter) Run(ctx context.Context, pages Pager) (Counts, error) {
	var counts Counts
	for {
		page, err := pages.Next(ctx)
		if err != nil {
			return counts, err
		}
		if len(page) == 0 {
			return counts, nil
		}
		for _, a := range page {
			select {
			case <-ctx.Done():
				return counts, ctx.Err()
			default:
			}
			if err := e.process(ctx, a, &counts); err != nil {
				return counts, err
			}
		}
	}
}

func (e *Exporter) process(ctx context.Context, a garmin.Activity, counts *Counts) error {
	name := Filename(a.ID, e.Format)
	log := slog.With("activity", a.ID, "name", a.Name)

	if e.Store.Exists(name) {
		log.Debug("already downloaded, skipping", "file", name)
		counts.Skipped++
		return nil
	}
	if e.Format == garmin.FormatOriginal && e.Store.Exists(fitSibling(a.ID)) {
		log.Debug("extracted file already present, skipping", "file", fitSibling(a.ID))
		counts.Skipped++
		return nil
	}

	log.Info("downloading", "format", e.Format, "file", name)
	data, err := e.Source.DownloadActivity(ctx, a.ID, e.Format)
	if err != nil {
		return err
	}

	if err := e.Store.Write(name, data); err != nil {
		return err
	}
	if len(data) == 0 {
		counts.Empty++
	}

	switch e.Format {
	case garmin.FormatGPX:
		if len(data) > 0 {
			points, err := countTrackpoints(data)
			if err != nil {
				log.Warn("GPX did not parse", "err", err)
			} else if points == 0 {
				// An indoor activity; the file is still a valid export.
				log.Info("no trackpoints in GPX")
				counts.NoTrack++
			}
		}
	case garmin.FormatOriginal:
		if e.Unzip && len(data) > 0 {
			if err := e.Store.Unzip(name); err != nil {
				return fmt.Errorf("unzipping %s: %w", name, err)
			}
		}
	}

	if t, ok := a.Begin.Time(); ok && e.Store.Exists(name) {
		if err := e.Store.Chtimes(name, t); err != nil {
			log.Warn("could not set file time", "err", err)
		}
	}

	if err := e.Sink.Append(a, e.Lookups); err != nil {
		return err
	}
	if e.Marker != nil {
		if err := e.Marker.MarkDownloaded(a.ID, name); err != nil {
			log.Warn("could not mark download in cache", "err", err)
		}
	}

	counts.Downloaded++
	return nil
}
