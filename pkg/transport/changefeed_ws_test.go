package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/solidb/pkg/changefeed"
	"github.com/cuemby/solidb/pkg/types"
)

func TestChangeEventDTOIncludesDataForInsert(t *testing.T) {
	fields := types.NewObject()
	fields.Set("name", types.String("gizmo"))
	c := &changefeed.Change{Type: changefeed.Insert, Key: "w1", Data: fields}

	dto := changeEventDTO(c)
	assert.Equal(t, "insert", dto["type"])
	assert.Equal(t, "w1", dto["key"])
	data, ok := dto["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gizmo", data["name"])
	assert.NotContains(t, dto, "old_data")
}

func TestChangeEventDTOIncludesOldDataForDelete(t *testing.T) {
	old := types.NewObject()
	old.Set("name", types.String("gizmo"))
	c := &changefeed.Change{Type: changefeed.Delete, Key: "w1", OldData: old}

	dto := changeEventDTO(c)
	assert.Equal(t, "delete", dto["type"])
	assert.NotContains(t, dto, "data")
	oldData, ok := dto["old_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gizmo", oldData["name"])
}

func TestHandleChangefeedWSDeliversPublishedChange(t *testing.T) {
	s := &Server{changefeed: changefeed.NewHub(4096)}
	ts := httptest.NewServer(http.HandlerFunc(s.handleChangefeedWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?database=app&collection=widgets"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	fields := types.NewObject()
	fields.Set("name", types.String("gizmo"))
	s.changefeed.Publish(&changefeed.Change{Type: changefeed.Insert, Database: "app", Collection: "widgets", Key: "w1", Data: fields})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "insert", got["type"])
	assert.Equal(t, "w1", got["key"])
}
