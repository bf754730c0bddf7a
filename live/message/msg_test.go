// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package message

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceivePubSubCmds(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cmds := ReceivePubSubCmds(ctx, mr.Addr(), "bench cmd")

	// published until the subscription is up
	toggle := NewCmd("toggle")
	toggle.Metadata["which"] = "lower"
	var got *Cmd
	deadline := time.After(5 * time.Second)
	for got == nil {
		require.NoError(t, client.Publish("bench cmd", "not json").Err())
		require.NoError(t, PublishCmd(client, "bench cmd", toggle))
		select {
		case cmd, ok := <-cmds:
			require.True(t, ok, "command channel closed")
			got = cmd
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			require.FailNow(t, "no command received")
		}
	}
	assert.Equal(t, "toggle", got.Command)
	assert.Equal(t, "lower", got.Metadata["which"])

	cancel()
	for range cmds {
	}
}

func TestPublishJsonMsg(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe("bench broadcast")
	_, err = sub.Receive()
	require.NoError(t, err)
	defer sub.Close()

	msg := NewMsg(PsuStatus)
	msg.Metadata["error"] = "503 Service Unavailable"
	require.NoError(t, PublishJsonMsg(client, "bench broadcast", msg))

	select {
	case m := <-sub.Channel():
		assert.JSONEq(t,
			`{"Type": "psu status", "Metadata": {"error": "503 Service Unavailable"}, "Payload": null}`,
			m.Payload)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no broadcast received")
	}
}
