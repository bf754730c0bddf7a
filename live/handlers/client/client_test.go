// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package client

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rditech/rdi-bench/live"
	"github.com/rditech/rdi-bench/live/message"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readUntil(t *testing.T, c *websocket.Conn, msgType string) *message.Msg {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg message.Msg
		require.NoError(t, c.ReadJSON(&msg))
		if msg.Type == msgType {
			return &msg
		}
	}
}

func TestClientHandler(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	h := &ClientHandler{Namespace: "test", Redis: redisClient, Addr: mr.Addr(), MaxNPR: 100}
	srv := httptest.NewServer(h)
	defer srv.Close()

	cmds := redisClient.Subscribe(live.CmdChannel("test"))
	_, err = cmds.Receive()
	require.NoError(t, err)
	defer cmds.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	// the reply also means the broadcast subscription is up
	require.NoError(t, c.WriteJSON(message.NewCmd("get client id")))
	msg := readUntil(t, c, "client id")
	_, err = uuid.Parse(msg.Metadata["id"])
	assert.NoError(t, err)

	status := message.NewMsg(message.PsuStatus)
	status.Metadata["error"] = "503 Service Unavailable"
	require.NoError(t, message.PublishJsonMsg(redisClient, live.BroadcastChannel("test"), status))
	msg = readUntil(t, c, message.PsuStatus)
	assert.Equal(t, "503 Service Unavailable", msg.Metadata["error"])

	toggle := message.NewCmd("toggle")
	toggle.Metadata["which"] = "upper"
	require.NoError(t, c.WriteJSON(toggle))
	require.NoError(t, c.WriteJSON(message.NewCmd("list shows")))

	relayed := cmds.Channel()
	var got []message.Cmd
	for len(got) < 2 {
		select {
		case m := <-relayed:
			var cmd message.Cmd
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &cmd))
			got = append(got, cmd)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "commands not relayed")
		}
	}
	assert.Equal(t, "toggle", got[0].Command)
	assert.Equal(t, "upper", got[0].Metadata["which"])
	assert.Equal(t, "pub all shows", got[1].Command)
}
