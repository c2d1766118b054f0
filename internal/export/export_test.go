package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sstent/gcexport/internal/garmin"
)

const gpxWithTrack = `<?xml version="1.0"?><gpx><trk><trkseg>
<trkpt lat="52.1" lon="5.1"></trkpt>
<trkpt lat="52.2" lon="5.2"></trkpt>
</trkseg></trk></gpx>`

const gpxWithoutTrack = `<?xml version="1.0"?><gpx><trk></trk></gpx>`

type fakeSource struct {
	payloads map[string][]byte
	fail     map[string]error
	calls    []string
	onCall   func()
}

func (s *fakeSource) DownloadActivity(ctx context.Context, id string, f garmin.Format) ([]byte, error) {
	s.calls = append(s.calls, id)
	if s.onCall != nil {
		s.onCall()
	}
	if err, ok := s.fail[id]; ok {
		return nil, err
	}
	return s.payloads[id], nil
}

type slicePager struct {
	pages [][]garmin.Activity
	i     int
}

func (p *slicePager) Next(ctx context.Context) ([]garmin.Activity, error) {
	if p.i >= len(p.pages) {
		return nil, nil
	}
	page := p.pages[p.i]
	p.i++
	return page, nil
}

func activities(ids ...string) []garmin.Activity {
	out := make([]garmin.Activity, len(ids))
	for i, id := range ids {
		out[i] = garmin.Activity{
			ID:    id,
			Name:  "Run " + id,
			Begin: garmin.Timestamp{Millis: 1445534340000},
		}
	}
	return out
}

func newExporter(t *testing.T, dir string, source Source, format garmin.Format) (*Exporter, *Ledger) {
	t.Helper()
	store, err := NewDirStore(dir)
	require.NoError(t, err)
	ledger, err := OpenLedger(filepath.Join(dir, LedgerName))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return &Exporter{Source: source, Store: store, Sink: ledger, Format: format}, ledger
}

func ledgerLines(t *testing.T, dir string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, LedgerName))
	require.NoError(t, err)
	return bytes.Count(data, []byte("\n"))
}

func TestFilenameIsDeterministic(t *testing.T) {
	require.Equal(t, Filename("123", garmin.FormatGPX), Filename("123", garmin.FormatGPX))
	require.Equal(t, "activity_123.gpx", Filename("123", garmin.FormatGPX))
	require.Equal(t, "activity_123.zip", Filename("123", garmin.FormatOriginal))
}

func TestRunDownloadsEveryRecord(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{payloads: map[string][]byte{
		"1": []byte(gpxWithTrack),
		"2": []byte(gpxWithTrack),
		"3": []byte(gpxWithoutTrack),
	}}
	exporter, _ := newExporter(t, dir, source, garmin.FormatGPX)

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{
		activities("1", "2"),
		activities("3"),
	}})
	require.NoError(t, err)

	require.Equal(t, 3, counts.Downloaded)
	require.Equal(t, 1, counts.NoTrack, "indoor activity logged, not failed")
	require.Zero(t, counts.Skipped)
	for _, id := range []string{"1", "2", "3"} {
		require.FileExists(t, filepath.Join(dir, Filename(id, garmin.FormatGPX)))
	}
	require.Equal(t, 4, ledgerLines(t, dir), "header plus one row per record")

	// Downloaded files carry the activity's begin time.
	info, err := os.Stat(filepath.Join(dir, "activity_1.gpx"))
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(time.UnixMilli(1445534340000)))
}

func TestSecondRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	run := func() (Counts, int) {
		source := &fakeSource{payloads: map[string][]byte{
			"1": []byte(gpxWithTrack), "2": []byte(gpxWithTrack),
		}}
		exporter, ledger := newExporter(t, dir, source, garmin.FormatGPX)
		counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1", "2")}})
		require.NoError(t, err)
		require.NoError(t, ledger.Close())
		return counts, len(source.calls)
	}

	first, firstDownloads := run()
	require.Equal(t, 2, first.Downloaded)
	require.Equal(t, 2, firstDownloads)

	second, secondDownloads := run()
	require.Zero(t, second.Downloaded)
	require.Equal(t, 2, second.Skipped)
	require.Zero(t, secondDownloads, "a completed run leaves nothing to download")
	require.Equal(t, 3, ledgerLines(t, dir), "no duplicate rows on the resumed run")
}

func TestEmptyPayloadStillCompletes(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{payloads: map[string][]byte{"1": {}}}
	exporter, _ := newExporter(t, dir, source, garmin.FormatTCX)

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1")}})
	require.NoError(t, err)

	require.Equal(t, 1, counts.Downloaded)
	require.Equal(t, 1, counts.Empty)
	data, err := os.ReadFile(filepath.Join(dir, "activity_1.tcx"))
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestFatalDownloadAbortsRun(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("session expired")
	source := &fakeSource{
		payloads: map[string][]byte{"1": []byte(gpxWithTrack)},
		fail:     map[string]error{"2": boom},
	}
	exporter, _ := newExporter(t, dir, source, garmin.FormatGPX)

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1", "2", "3")}})
	require.ErrorIs(t, err, boom)

	require.Equal(t, 1, counts.Downloaded)
	require.Equal(t, []string{"1", "2"}, source.calls, "no further work after the fatal error")
	require.FileExists(t, filepath.Join(dir, "activity_1.gpx"), "partial progress is kept for the resumed run")
	require.Equal(t, 2, ledgerLines(t, dir))
}

func TestOriginalSkipsWhenExtractionExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "activity_1.fit"), []byte("fit"), 0o644))
	source := &fakeSource{}
	exporter, _ := newExporter(t, dir, source, garmin.FormatOriginal)

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1")}})
	require.NoError(t, err)

	require.Equal(t, 1, counts.Skipped)
	require.Empty(t, source.calls)
}

func zipPayload(t *testing.T, name, contents string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOriginalUnzipExtractsAndRemovesArchive(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{payloads: map[string][]byte{
		"1": zipPayload(t, "1.fit", "fitdata"),
	}}
	exporter, _ := newExporter(t, dir, source, garmin.FormatOriginal)
	exporter.Unzip = true

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1")}})
	require.NoError(t, err)

	require.Equal(t, 1, counts.Downloaded)
	require.NoFileExists(t, filepath.Join(dir, "activity_1.zip"))
	extracted, err := os.ReadFile(filepath.Join(dir, "1.fit"))
	require.NoError(t, err)
	require.Equal(t, "fitdata", string(extracted))
}

func TestZeroByteArchiveIsLeftAlone(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{payloads: map[string][]byte{"1": {}}}
	exporter, _ := newExporter(t, dir, source, garmin.FormatOriginal)
	exporter.Unzip = true

	counts, err := exporter.Run(context.Background(), &slicePager{pages: [][]garmin.Activity{activities("1")}})
	require.NoError(t, err)

	require.Equal(t, 1, counts.Empty)
	require.FileExists(t, filepath.Join(dir, "activity_1.zip"))
}

func TestCancellationStopsBetweenActivities(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{
		payloads: map[string][]byte{"1": []byte(gpxWithTrack), "2": []byte(gpxWithTrack)},
		onCall:   cancel,
	}
	exporter, _ := newExporter(t, dir, source, garmin.FormatGPX)

	counts, err := exporter.Run(ctx, &slicePager{pages: [][]garmin.Activity{activities("1", "2")}})
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight activity finished; the next one never started.
	require.Equal(t, 1, counts.Downloaded)
	require.Equal(t, []string{"1"}, source.calls)
	require.FileExists(t, filepath.Join(dir, "activity_1.gpx"))
}

func TestCountTrackpoints(t *testing.T) {
	n, err := countTrackpoints([]byte(gpxWithTrack))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = countTrackpoints([]byte(gpxWithoutTrack))
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = countTrackpoints([]byte("not xml <"))
	require.Error(t, err)
}
