package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/freedkr/docbatch/internal/model"
)

func TestWatchReadsEventsUntilServerCloses(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		events := []model.ProgressEvent{
			{BatchID: "b1", DocumentName: "a.csv", Status: "processing", Processed: 0, Total: 2},
			{BatchID: "b1", DocumentName: "a.csv", Status: "completed", Processed: 1, Total: 2},
		}
		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(ev))
		}
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	err := watch(addr, "b1", true)
	require.Error(t, err)
}
