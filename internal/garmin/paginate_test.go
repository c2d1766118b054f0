package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureActivity renders one activity in the current flat JSON shape. Index
// 0 is the newest activity, matching the endpoint's descending order.
func fixtureActivity(id int) map[string]any {
	return map[string]any{
		"activityId":   id,
		"activityName": fmt.Sprintf("Run %d", id),
		"startTimeGMT": map[string]any{"millis": 1_600_000_000_000 + int64(id)*1000},
	}
}

// searchHandler serves n activities, newest first, in the requested shape.
func searchHandler(t *testing.T, n int, nested bool, fetches *[]int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if fetches != nil {
			*fetches = append(*fetches, start)
		}

		var page []map[string]any
		for i := start; i < start+limit && i < n; i++ {
			// Newest first: offset i is activity n-i.
			page = append(page, fixtureActivity(n-i))
		}
		if page == nil {
			page = []map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		if !nested {
			json.NewEncoder(w).Encode(page)
			return
		}
		wrapped := make([]map[string]any, len(page))
		for i, a := range page {
			wrapped[i] = map[string]any{"activity": a}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"search":     map[string]any{"totalFound": n},
				"activities": wrapped,
			},
		})
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientOptions{
		Endpoints: Endpoints{SSOHost: srv.URL, ConnectHost: srv.URL},
	})
	require.NoError(t, err)
	return client
}

func collect(t *testing.T, p *Paginator) []Activity {
	t.Helper()
	var all []Activity
	for {
		page, err := p.Next(context.Background())
		require.NoError(t, err)
		if len(page) == 0 {
			return all
		}
		all = append(all, page...)
	}
}

func ids(records []Activity) []string {
	out := make([]string, len(records))
	for i, a := range records {
		out[i] = a.ID
	}
	return out
}

func TestForwardPaginationStopsOnShortPage(t *testing.T) {
	var fetches []int
	client := newTestClient(t, searchHandler(t, 250, false, &fetches))

	records := collect(t, client.Paginate(ListOptions{}))

	require.Len(t, records, 250)
	require.Equal(t, []int{0, 100, 200}, fetches, "a short page must end the walk without another fetch")

	seen := map[string]bool{}
	for _, a := range records {
		require.False(t, seen[a.ID], "identifier %s yielded twice", a.ID)
		seen[a.ID] = true
	}
}

func TestForwardPaginationHonorsLimitMidPage(t *testing.T) {
	client := newTestClient(t, searchHandler(t, 250, false, nil))

	records := collect(t, client.Paginate(ListOptions{Limit: 150}))

	require.Len(t, records, 150)
	require.Equal(t, "250", records[0].ID, "newest first")
	require.Equal(t, "101", records[149].ID)
}

func TestForwardPaginationExactMultiple(t *testing.T) {
	var fetches []int
	client := newTestClient(t, searchHandler(t, 200, false, &fetches))

	records := collect(t, client.Paginate(ListOptions{}))

	require.Len(t, records, 200)
	// The final full page forces one probe that comes back empty.
	require.Equal(t, []int{0, 100, 200}, fetches)
}

func TestReverseIsExactReverseOfForward(t *testing.T) {
	forward := collect(t, newTestClient(t, searchHandler(t, 250, true, nil)).Paginate(ListOptions{}))
	reverse := collect(t, newTestClient(t, searchHandler(t, 250, true, nil)).Paginate(ListOptions{Reverse: true}))

	require.Len(t, reverse, 250)
	for i := range forward {
		require.Equal(t, forward[len(forward)-1-i].ID, reverse[i].ID)
	}
}

func TestReversePaginationTilesExactly(t *testing.T) {
	// 250 is not a multiple of the page size, so the earliest page must
	// shrink rather than overlap.
	var fetches []int
	client := newTestClient(t, searchHandler(t, 250, true, &fetches))

	records := collect(t, client.Paginate(ListOptions{Reverse: true}))

	require.Len(t, records, 250)
	require.Equal(t, "1", records[0].ID, "oldest activity first")
	require.Equal(t, "250", records[249].ID)

	seen := map[string]bool{}
	for _, a := range records {
		require.False(t, seen[a.ID], "identifier %s yielded twice", a.ID)
		seen[a.ID] = true
	}
	// Probe at 0, then offsets walking back from the newest end.
	require.Equal(t, []int{0, 150, 50, 0}, fetches)
}

func TestReverseYieldsOldestUnderLimit(t *testing.T) {
	client := newTestClient(t, searchHandler(t, 250, true, nil))

	records := collect(t, client.Paginate(ListOptions{Reverse: true, Limit: 5}))

	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(records))
}

func TestReverseRequiresTotalCount(t *testing.T) {
	client := newTestClient(t, searchHandler(t, 50, false, nil))

	_, err := client.Paginate(ListOptions{Reverse: true}).Next(context.Background())
	require.ErrorIs(t, err, ErrNoTotalCount)
}

func TestNestedAndFlatShapesDecodeAlike(t *testing.T) {
	flat := collect(t, newTestClient(t, searchHandler(t, 42, false, nil)).Paginate(ListOptions{}))
	nested := collect(t, newTestClient(t, searchHandler(t, 42, true, nil)).Paginate(ListOptions{}))

	require.Equal(t, ids(flat), ids(nested))
	require.Equal(t, flat[0].Name, nested[0].Name)
}

func TestMissingIdentifierIsFatal(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"activityName": "nameless"}]`)
	}))

	_, err := client.Paginate(ListOptions{}).Next(context.Background())
	var shapeErr *SourceShapeError
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, "activityId", shapeErr.Field)
}

func TestPageFetchErrorIsFatal(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Paginate(ListOptions{}).Next(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadGateway, httpErr.Code)
}
