package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

func newTestHTTPServer(t *testing.T) *Server {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	catalog := storage.NewCatalog(e)
	_, err = catalog.CreateDatabase("app")
	require.NoError(t, err)
	require.NoError(t, catalog.CreateCollection("app", &types.Collection{
		Name: "widgets",
		Kind: types.CollectionDocument,
	}))

	s, err := NewServer(Config{
		Engine:        e,
		Catalog:       catalog,
		NodeID:        "n1",
		AdminPassword: "hunter2",
		JWTSecret:     "test-secret",
	})
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleInsertThenGetDocument(t *testing.T) {
	s := newTestHTTPServer(t)
	h := s.httpHandler

	w := doJSON(t, h, "POST", "/_api/database/app/document/widgets", map[string]any{"name": "gizmo"})
	require.Equal(t, http.StatusCreated, w.Code)

	var inserted map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inserted))
	assert.Equal(t, "gizmo", inserted["name"])
	key, _ := inserted["_key"].(string)
	require.NotEmpty(t, key)

	w = doJSON(t, h, "GET", "/_api/database/app/document/widgets/"+key, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "gizmo", fetched["name"])
}

func TestHandleGetDocumentMissingReturnsNotFound(t *testing.T) {
	s := newTestHTTPServer(t)
	w := doJSON(t, s.httpHandler, "GET", "/_api/database/app/document/widgets/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var apiErr apiError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, string(types.ErrNotFound), apiErr.Kind)
}

func TestHandleCreateDatabaseRequiresAdmin(t *testing.T) {
	s := newTestHTTPServer(t)
	w := doJSON(t, s.httpHandler, "POST", "/_api/database/", map[string]any{"name": "other"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleCreateDatabaseSucceedsWithAdminToken(t *testing.T) {
	s := newTestHTTPServer(t)
	tok, err := s.issueToken("admin", roleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/_api/database/", bytes.NewReader([]byte(`{"name":"other"}`)))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.httpHandler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandleListDatabases(t *testing.T) {
	s := newTestHTTPServer(t)
	w := doJSON(t, s.httpHandler, "GET", "/_api/database/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	dbs, ok := resp["databases"].([]any)
	require.True(t, ok)
	assert.Contains(t, dbs, "app")
}

func TestHandleCreateAndDeleteIndex(t *testing.T) {
	s := newTestHTTPServer(t)
	h := s.httpHandler

	w := doJSON(t, h, "POST", "/_api/database/app/collection/widgets/index", map[string]any{
		"name":   "by_name",
		"type":   string(types.IndexHash),
		"fields": []string{"name"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "GET", "/_api/database/app/collection/widgets/index", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	indexes, ok := listed["indexes"].([]any)
	require.True(t, ok)
	assert.Len(t, indexes, 1)

	w = doJSON(t, h, "DELETE", "/_api/database/app/collection/widgets/index/by_name", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleCursorRunsSimpleQuery(t *testing.T) {
	s := newTestHTTPServer(t)
	h := s.httpHandler

	doJSON(t, h, "POST", "/_api/database/app/document/widgets", map[string]any{"name": "gizmo"})

	w := doJSON(t, h, "POST", "/_api/database/app/cursor", map[string]any{
		"query": "FOR d IN widgets RETURN d.name",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	result, ok := resp["result"].([]any)
	require.True(t, ok)
	assert.Contains(t, result, "gizmo")
}
