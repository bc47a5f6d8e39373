package intelligence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeakClientCheckDomain(t *testing.T) {
	t.Run("CountsAndRecords", func(t *testing.T) {
		var gotKey, gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("DeHashed-Api-Key")
			var req leakSearchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotQuery = req.Query

			json.NewEncoder(w).Encode(map[string]interface{}{
				"entries": []map[string]string{
					{"email": "alice@example.com", "password": "hunter2"},
					{"email": "bob@example.com", "hashed_password": "5f4dcc3b"},
					{"email": "carol@example.com"},
				},
			})
		}))
		defer srv.Close()

		c := NewLeakClient(srv.URL, "test-key", 5*time.Second, nil, time.Hour)
		result, err := c.CheckDomain(context.Background(), "example.com")
		require.NoError(t, err)

		assert.Equal(t, "test-key", gotKey)
		assert.Equal(t, "domain:example.com", gotQuery)
		assert.Equal(t, 3, result.NumEmails)
		assert.Equal(t, 1, result.NumPasswords)
		assert.Equal(t, 1, result.NumHashes)
		assert.Len(t, result.Records, 3)
	})

	t.Run("NoLeaks", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"entries": []map[string]string{}})
		}))
		defer srv.Close()

		c := NewLeakClient(srv.URL, "test-key", 5*time.Second, nil, time.Hour)
		result, err := c.CheckDomain(context.Background(), "example.com")
		require.NoError(t, err)
		assert.Equal(t, 0, result.NumEmails+result.NumPasswords+result.NumHashes)
	})

	t.Run("UpstreamError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		c := NewLeakClient(srv.URL, "bad-key", 5*time.Second, nil, time.Hour)
		_, err := c.CheckDomain(context.Background(), "example.com")
		assert.Error(t, err)
	})

	t.Run("Unreachable", func(t *testing.T) {
		c := NewLeakClient("http://127.0.0.1:1", "test-key", time.Second, nil, time.Hour)
		_, err := c.CheckDomain(context.Background(), "example.com")
		assert.Error(t, err)
	})
}
