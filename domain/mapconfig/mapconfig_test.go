package mapconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAllowed_EmptyFilterAllowsAll(t *testing.T) {
	c := MapConfig{}
	assert.True(t, c.EventAllowed("add_system"))
}

func TestEventAllowed_NonEmptyFilterRestricts(t *testing.T) {
	c := MapConfig{EventFilter: []string{"add_system"}}
	assert.True(t, c.EventAllowed("add_system"))
	assert.False(t, c.EventAllowed("character_added"))
}

func TestFetchConfig_ParsesMapsAndSkipsInvalidEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"version":3,"maps":[
			{"slug":"alpha","map_id":"1","api_token":"t1","event_filter":["add_system"]},
			{"slug":"","map_id":"2"}
		]}}`))
	}))
	defer server.Close()

	client, err := NewControlPlaneClient(server.URL, "key", nil)
	require.NoError(t, err)

	resp, skipped, err := client.FetchConfig(context.Background())
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.Len(t, resp.Maps, 1)
	assert.Equal(t, "alpha", resp.Maps[0].Slug)
	assert.Equal(t, int64(3), resp.Version)
}

func TestFetchConfig_404ReturnsEndpointNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewControlPlaneClient(server.URL, "key", nil)
	require.NoError(t, err)

	_, _, err = client.FetchConfig(context.Background())
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}
