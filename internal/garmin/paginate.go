package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrNoTotalCount means reverse mode was requested against a source shape
// that never reports how many activities exist.
var ErrNoTotalCount = errors.New("activity source does not report a total count")

// ListOptions bounds one pagination run.
type ListOptions struct {
	// Limit caps the total records yielded; 0 means all.
	Limit int
	// Reverse yields oldest-first instead of the source's newest-first.
	Reverse bool
	// StartOffset begins a forward walk part-way through the history.
	StartOffset int
}

// Paginator walks the activity list in deterministic order. Page fetch
// failures are fatal to the caller; re-running the export is the retry
// mechanism.
type Paginator struct {
	c    *Client
	opts ListOptions

	started bool
	done    bool
	offset  int
	size    int
	yielded int
}

// Paginate prepares a walk; no request happens until Next.
func (c *Client) Paginate(opts ListOptions) *Paginator {
	size := c.pageSize
	// No point fetching a bigger chunk than the caller will consume.
	if opts.Limit > 0 && opts.Limit < size {
		size = opts.Limit
	}
	return &Paginator{c: c, opts: opts, offset: opts.StartOffset, size: size}
}

// Next returns the next page of records, already in yield order, or (nil,
// nil) once the walk is exhausted.
func (p *Paginator) Next(ctx context.Context) ([]Activity, error) {
	if p.done {
		return nil, nil
	}
	if !p.started {
		p.started = true
		if p.opts.Reverse {
			if err := p.seekToOldest(ctx); err != nil {
				return nil, err
			}
			if p.done {
				return nil, nil
			}
		}
	}

	requested := p.size
	if !p.opts.Reverse && p.opts.Limit > 0 {
		if remaining := p.opts.Limit - p.yielded; remaining < requested {
			requested = remaining
		}
	}

	page, err := p.c.fetchPage(ctx, p.offset, requested)
	if err != nil {
		return nil, err
	}
	records := page.activities

	if p.opts.Reverse {
		reverseInPlace(records)
		if p.offset == 0 {
			p.done = true
		} else {
			next := p.size
			if next > p.offset {
				next = p.offset
			}
			p.offset -= next
			p.size = next
		}
	} else {
		if len(records) < requested {
			// A short page signals exhaustion; never request past it.
			p.done = true
		}
		p.offset += len(records)
	}

	if p.opts.Limit > 0 && p.yielded+len(records) >= p.opts.Limit {
		records = records[:p.opts.Limit-p.yielded]
		p.done = true
	}
	p.yielded += len(records)

	if len(records) == 0 && !p.done {
		p.done = true
	}
	return records, nil
}

// seekToOldest probes the total count with a single-record request and
// positions the cursor so that successive pages tile [0, N) exactly, the
// earliest page shrinking instead of overlapping.
func (p *Paginator) seekToOldest(ctx context.Context) error {
	probe, err := p.c.fetchPage(ctx, 0, 1)
	if err != nil {
		return err
	}
	if !probe.hasTotal {
		return ErrNoTotalCount
	}
	n := probe.total
	if n <= 0 {
		p.done = true
		return nil
	}
	if p.size > n {
		p.size = n
	}
	p.offset = n - p.size
	return nil
}

func reverseInPlace(records []Activity) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

// searchPage is one decoded chunk of the activity list.
type searchPage struct {
	activities []Activity
	total      int
	hasTotal   bool
}

func (c *Client) fetchPage(ctx context.Context, start, limit int) (searchPage, error) {
	query := url.Values{
		"start": {strconv.Itoa(start)},
		"limit": {strconv.Itoa(limit)},
	}
	body, err := c.session.Get(ctx, c.searchURL(), query)
	if err != nil {
		return searchPage{}, fmt.Errorf("fetching activities at offset %d: %w", start, err)
	}
	page, err := decodeSearchPage(body)
	if err != nil {
		return searchPage{}, fmt.Errorf("decoding activities at offset %d: %w", start, err)
	}
	return page, nil
}

// decodeSearchPage accepts both historical list shapes: the flat array the
// current endpoint returns, and the nested results/search/activities document
// older endpoints returned (which also carries the total count).
func decodeSearchPage(data []byte) (searchPage, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return searchPage{}, err
	}

	trimmed := []byte(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var flat []activityJSON
		if err := json.Unmarshal(trimmed, &flat); err != nil {
			return searchPage{}, err
		}
		return convertPage(flat, 0, false)
	}

	var nested struct {
		Results struct {
			Search struct {
				TotalFound ident `json:"totalFound"`
			} `json:"search"`
			Activities []struct {
				Activity activityJSON `json:"activity"`
			} `json:"activities"`
		} `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &nested); err != nil {
		return searchPage{}, err
	}
	flat := make([]activityJSON, 0, len(nested.Results.Activities))
	for _, wrapped := range nested.Results.Activities {
		flat = append(flat, wrapped.Activity)
	}
	total, err := strconv.Atoi(string(nested.Results.Search.TotalFound))
	if err != nil {
		return convertPage(flat, 0, false)
	}
	return convertPage(flat, total, true)
}

func convertPage(raw []activityJSON, total int, hasTotal bool) (searchPage, error) {
	page := searchPage{total: total, hasTotal: hasTotal}
	for _, a := range raw {
		activity, err := a.toActivity()
		if err != nil {
			return searchPage{}, err
		}
		page.activities = append(page.activities, activity)
	}
	return page, nil
}
