package garmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Format selects which rendition of an activity to download.
type Format string

const (
	// FormatGPX is the GPS track export.
	FormatGPX Format = "gpx"
	// FormatTCX is the structured workout export.
	FormatTCX Format = "tcx"
	// FormatOriginal is the raw uploaded file, served as a zip archive.
	FormatOriginal Format = "original"
)

// ParseFormat validates a CLI-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGPX, FormatTCX, FormatOriginal:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (want gpx, tcx or original)", s)
}

// Ext is the on-disk extension for downloads in this format. Original
// uploads arrive zipped regardless of what they contain.
func (f Format) Ext() string {
	if f == FormatOriginal {
		return "zip"
	}
	return string(f)
}

func (c *Client) downloadURL(id string, f Format) string {
	switch f {
	case FormatOriginal:
		return c.ep.ConnectHost + "/modern/proxy/download-service/files/activity/" + url.PathEscape(id)
	default:
		return c.ep.ConnectHost + "/modern/proxy/download-service/export/" + string(f) + "/activity/" + url.PathEscape(id) + "?full=true"
	}
}

// DownloadActivity fetches one activity in the given format. Two error codes
// are conditions of the data rather than of the transfer and map to an empty
// payload: a 500 on TCX (the activity has no structured workout to render)
// and a 404 on Original (the activity was entered manually, there is no
// uploaded file). Anything else is fatal to the run, since an unexpected
// status usually means the session expired or the endpoint moved.
func (c *Client) DownloadActivity(ctx context.Context, id string, f Format) ([]byte, error) {
	data, err := c.session.Get(ctx, c.downloadURL(id, f), nil)
	if err == nil {
		return data, nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case f == FormatTCX && httpErr.Code == http.StatusInternalServerError:
			slog.Info("no TCX available, writing empty file", "activity", id)
			return []byte{}, nil
		case f == FormatOriginal && httpErr.Code == http.StatusNotFound:
			slog.Info("manually entered activity, no original file", "activity", id)
			return []byte{}, nil
		}
	}
	return nil, fmt.Errorf("downloading activity %s as %s: %w", id, f, err)
}
