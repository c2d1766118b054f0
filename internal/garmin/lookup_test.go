package garmin

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePropertiesStripsPrefix(t *testing.T) {
	data := []byte("activity_type_running=Running\nactivity_type_cycling=Cycling\n\n# comment\nbroken line\n")

	p := parseProperties(data, "activity_type_")

	require.Equal(t, "Running", p.Get("running"))
	require.Equal(t, "Cycling", p.Get("cycling"))
	require.Equal(t, "swimming", p.Get("swimming"), "unknown keys fall back to the key")
}

func TestNilPropertiesFallsBackToKey(t *testing.T) {
	var p *Properties
	require.Equal(t, "running", p.Get("running"))
}

func TestLoadLookups(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /modern/main/js/properties/activity_types/activity_types.properties", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "activity_type_running=Running\nactivity_type_all=All\n")
	})
	mux.HandleFunc("GET /modern/main/js/properties/event_types/event_types.properties", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "race=Race\n")
	})
	mux.HandleFunc("GET /modern/proxy/activity-service/activity/activityTypes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"typeId": 1, "typeKey": "running"}, {"typeId": 17, "typeKey": "all"}]`)
	})
	mux.HandleFunc("GET /modern/proxy/activity-service/activity/eventTypes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"typeId": 3, "typeKey": "race"}]`)
	})
	mux.HandleFunc("GET /modern/proxy/device-service/deviceregistration/devices", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"deviceId": 42, "displayName": "Forerunner 230", "currentFirmwareVersion": "7.90"}]`)
	})
	client := newTestClient(t, mux)

	lookups := client.LoadLookups(context.Background())

	require.Equal(t, "Running", lookups.ActivityTypeName(1))
	require.Equal(t, "All", lookups.ActivityTypeName(17))
	require.Equal(t, "Race", lookups.EventTypeName(3))
	require.Equal(t, "Forerunner 230 7.90", lookups.DeviceName(42))
	require.Empty(t, lookups.DeviceName(99))
}

func TestLookupsDegradeWhenUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	lookups := client.LoadLookups(context.Background())

	require.Empty(t, lookups.ActivityTypeName(1))
	require.Empty(t, lookups.EventTypeName(3))
	require.Empty(t, lookups.DeviceName(42))
}

func TestNilLookupsAreSafe(t *testing.T) {
	var lookups *Lookups
	require.Empty(t, lookups.ActivityTypeName(1))
	require.Empty(t, lookups.EventTypeName(1))
	require.Empty(t, lookups.DeviceName(1))
}
