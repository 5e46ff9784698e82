package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadeye/ivms/config"
)

func testServer(t *testing.T) (*httptest.Server, *map[string]any) {
	t.Helper()

	var posted map[string]any

	mux := http.NewServeMux()

	mux.HandleFunc("/statuses", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "status": "Pending"},
			{"id": 2, "status": "Recorded"},
		})
	})

	mux.HandleFunc("/types", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 5, "violationType": "mobile"},
			{"id": 6, "violationType": "seatbelt"},
		})
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &posted
}

func testClient(baseURL string) *Client {
	return NewClient(config.API{
		BaseURL:        baseURL,
		StatusPath:     "/statuses",
		ViolationTypes: "/types",
		EventsPath:     "/events",
	}, zerolog.Nop())
}

func TestEventStatusID(t *testing.T) {

	srv, _ := testServer(t)
	c := testClient(srv.URL)

	assert.Equal(t, 2, c.EventStatusID("Recorded"))
	assert.Equal(t, -1, c.EventStatusID("Archived"))
}

func TestViolationTypeID(t *testing.T) {

	srv, _ := testServer(t)
	c := testClient(srv.URL)

	assert.Equal(t, 5, c.ViolationTypeID("mobile"))
	assert.Equal(t, -1, c.ViolationTypeID("speeding"))
}

func TestUpdateEvent(t *testing.T) {

	srv, posted := testServer(t)
	c := testClient(srv.URL)

	require.NoError(t, c.UpdateEvent(42, "event_recordings/20260830/42",
		"mobile"))

	got := *posted
	assert.Equal(t, float64(2), got["statusId"])
	assert.Equal(t, float64(5), got["violationTypeId"])
	assert.Equal(t, "event_recordings/20260830/42", got["recordingPath"])
	assert.Equal(t, "-", got["plateNum"])
}
