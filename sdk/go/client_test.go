package leadlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKanbanRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/contacts/kanban", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lead": []map[string]any{{"id": "l1", "name": "Ana", "fields": map[string]any{"status": "lead"}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", "tok")
	page, err := c.Kanban(context.Background(), 2, 25)
	require.NoError(t, err)
	require.Len(t, page["lead"], 1)
	assert.Equal(t, "lead", page["lead"][0].Status())
}

func TestUpdateLeadStatusSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/contacts/a%2Fb/status", r.URL.EscapedPath())
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "completed", body["status"])
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "a/b", "fields": map[string]any{"status": "completed"}})
	}))
	defer srv.Close()

	lead, err := New(srv.URL, "").UpdateLeadStatus(context.Background(), "a/b", "completed")
	require.NoError(t, err)
	assert.Equal(t, "completed", lead.Status())
}

func TestAPIErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"flat", `{"message":"lead locked"}`, "lead locked"},
		{"envelope", `{"error":{"code":"not_found","message":"contact not found"}}`, "contact not found"},
		{"html", `<html>bad gateway</html>`, genericErrorMessage},
		{"empty json", `{}`, genericErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "").KanbanCounts(context.Background())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
			assert.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestSetAIStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/ai-status", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{"phone": body["phone"], "active": body["active"], "updated": true})
	}))
	defer srv.Close()

	st, err := New(srv.URL, "").SetAIStatus(context.Background(), "+5511987654321", false)
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", st.Phone)
	assert.False(t, st.Active)
	assert.True(t, st.Updated)
}
