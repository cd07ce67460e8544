package transport

import (
	"net"
	"testing"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/types"
)

func newTestRPCServer(t *testing.T) *Server {
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

// roundTrip sends one Command over an in-process pipe served by
// serveBinary and returns the Response it gets back.
func roundTrip(t *testing.T, s *Server, cmd Command) Response {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	go s.serveBinary(server)

	var body []byte
	enc := msgpack.NewEncoderBytes(&body, msgpackHandle)
	require.NoError(t, enc.Encode(cmd))
	require.NoError(t, writeFrame(client, body))

	respBody, err := readFrame(client)
	require.NoError(t, err)

	var resp Response
	dec := msgpack.NewDecoderBytes(respBody, msgpackHandle)
	require.NoError(t, dec.Decode(&resp))
	return resp
}

func TestDispatchInsertThenGet(t *testing.T) {
	s := newTestRPCServer(t)

	insertResp := roundTrip(t, s, Command{ID: 1, Op: "Insert", Database: "app", Collection: "widgets", Fields: map[string]any{"name": "gizmo"}})
	require.Nil(t, insertResp.Error)
	require.NotNil(t, insertResp.Ok)
	doc, ok := insertResp.Ok.Data.(map[string]any)
	require.True(t, ok)
	key, _ := doc["_key"].(string)
	require.NotEmpty(t, key)

	getResp := roundTrip(t, s, Command{ID: 2, Op: "Get", Database: "app", Collection: "widgets", Key: key})
	require.Nil(t, getResp.Error)
	got, ok := getResp.Ok.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gizmo", got["name"])
}

func TestDispatchGetMissingReturnsNotFoundError(t *testing.T) {
	s := newTestRPCServer(t)
	resp := roundTrip(t, s, Command{ID: 1, Op: "Get", Database: "app", Collection: "widgets", Key: "nope"})
	require.Nil(t, resp.Ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrNotFound), resp.Error.Kind)
}

func TestDispatchCreateDatabaseRequiresAdminToken(t *testing.T) {
	s := newTestRPCServer(t)
	resp := roundTrip(t, s, Command{ID: 1, Op: "CreateDatabase", Database: "other"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrForbidden), resp.Error.Kind)
}

func TestDispatchCreateDatabaseSucceedsWithAdminToken(t *testing.T) {
	s := newTestRPCServer(t)
	tok, err := s.issueToken("admin", roleAdmin)
	require.NoError(t, err)

	resp := roundTrip(t, s, Command{ID: 1, Op: "CreateDatabase", Database: "other", Token: tok})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Ok)
	assert.Equal(t, "other", resp.Ok.Data)
}

func TestDispatchUnknownOpReturnsInvalidCommand(t *testing.T) {
	s := newTestRPCServer(t)
	resp := roundTrip(t, s, Command{ID: 1, Op: "NotARealOp"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protoInvalidCommand, resp.Error.Kind)
}

func TestDispatchQueryRuns(t *testing.T) {
	s := newTestRPCServer(t)
	roundTrip(t, s, Command{ID: 1, Op: "Insert", Database: "app", Collection: "widgets", Fields: map[string]any{"name": "gizmo"}})

	resp := roundTrip(t, s, Command{ID: 2, Op: "Query", Database: "app", Query: "FOR w IN widgets RETURN w.name"})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Ok)
	data, ok := resp.Ok.Data.(map[string]any)
	require.True(t, ok)
	result, ok := data["result"].([]any)
	require.True(t, ok)
	assert.Contains(t, result, "gizmo")
}
