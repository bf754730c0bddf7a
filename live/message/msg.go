// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package message

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis"
	"github.com/gorilla/websocket"
)

// Message types pushed to browsers.
const (
	ShowFrame        = "show frame"
	ShowAnnounce     = "show announce"
	InstrumentStatus = "instrument status"
	PsuStatus        = "psu status"
	CalibrationState = "calibration status"
)

type Msg struct {
	Type     string
	Metadata map[string]string
	Payload  []byte
}

func NewMsg(msgType string) *Msg {
	return &Msg{
		Type:     msgType,
		Metadata: make(map[string]string),
	}
}

func PublishJsonMsg(redis *redis.Client, channel string, msg *Msg) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return redis.Publish(channel, string(msgBytes)).Err()
}

type Cmd struct {
	Command  string
	Metadata map[string]string
}

func NewCmd(command string) *Cmd {
	return &Cmd{
		Command:  command,
		Metadata: make(map[string]string),
	}
}

type Executer interface {
	Execute(*Cmd) error
}

func PublishCmd(redis *redis.Client, channel string, cmd *Cmd) error {
	cmdBytes, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return redis.Publish(channel, string(cmdBytes)).Err()
}

func ReceivePubSubCmds(ctx context.Context, addr, channel string) <-chan *Cmd {
	cmds := make(chan *Cmd)

	go func() {
		defer close(cmds)

		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		sub := redisClient.Subscribe(channel)
		_, err := sub.Receive()
		if err != nil {
			log.Println("sub.Receive():", err)
			return
		}
		defer sub.Close()

		log.Println("listening for commands on channel", channel)
		defer log.Println("done listening for commands on channel", channel)

		msgs := sub.ChannelSize(10)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var cmd Cmd
				if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
					log.Println("dropping malformed command:", err)
					continue
				}
				select {
				case cmds <- &cmd:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return cmds
}

func ReceiveWsCmds(ctx context.Context, c *websocket.Conn) <-chan *Cmd {
	cmds := make(chan *Cmd)

	go func() {
		defer close(cmds)

		for {
			var cmd Cmd
			err := c.ReadJSON(&cmd)
			if err != nil {
				return
			}
			select {
			case cmds <- &cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	return cmds
}
