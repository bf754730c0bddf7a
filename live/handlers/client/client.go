// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rditech/rdi-bench/live"
	"github.com/rditech/rdi-bench/live/message"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var nClients uint64

// ClientHandler serves the browser websocket. Everything published on the
// namespace broadcast channel is forwarded to the browser and commands
// from the browser are relayed to the dashboard command channel.
type ClientHandler struct {
	Namespace string
	Redis     *redis.Client
	Addr      string
	MaxNPR    float64
	Srv       *http.Server

	websocket.Upgrader
}

func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := uuid.New().String()

	log.Println("starting client ws serve for", clientID)
	c, err := h.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	subClient := redis.NewClient(&redis.Options{Addr: h.Addr})
	sub := subClient.Subscribe(live.BroadcastChannel(h.Namespace))
	_, err = sub.Receive()
	if err != nil {
		log.Println("PubSub.Receive():", err)
		subClient.Close()
		c.Close()
		return
	}
	broadcast := sub.ChannelSize(10)

	ctx, cancel := context.WithCancel(context.Background())
	resp := make(chan *message.Msg)

	go func() {
		defer cancel()

		for cmd := range message.ReceiveWsCmds(ctx, c) {
			h.Execute(ctx, clientID, cmd, resp)
		}
	}()

	msgBufs := make(chan []byte, 100)
	priorityBufs := make(chan []byte, 10000)

	go func() {
		atomic.AddUint64(&nClients, 1)
		defer func() {
			log.Println("stopped client ws serve for", clientID)
			time.Sleep(time.Second)
			atomic.AddUint64(&nClients, ^uint64(0))
			if h.Srv != nil && atomic.LoadUint64(&nClients) == 0 {
				log.Println("no clients, shutting down")
				h.Srv.Shutdown(context.Background())
			}
		}()
		defer c.Close()
		defer subClient.Close()
		defer sub.Close()

		var buf []byte
		var msg *message.Msg
		for {
			select {
			case msg = <-resp:
				if msg == nil {
					continue
				}
				var err error
				buf, err = json.Marshal(msg)
				if err != nil {
					log.Println(err)
					continue
				}
			case redisMsg, ok := <-broadcast:
				if !ok {
					return
				}
				buf = []byte(redisMsg.Payload)
				msg = &message.Msg{}
				json.Unmarshal(buf, msg)
			case <-ctx.Done():
				return
			}

			// frames may be dropped, status never
			channel := priorityBufs
			switch msg.Type {
			case message.ShowFrame, "system status":
				channel = msgBufs
			default:
			}

			select {
			case channel <- buf:
			default:
			}
		}
	}()

	go func() {
		for {
			msg := message.NewMsg("system status")

			idle0, total0 := getCPUSample()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			idle1, total1 := getCPUSample()
			idleTicks := float64(idle1 - idle0)
			totalTicks := float64(total1 - total0)
			cpuUsage := (totalTicks - idleTicks) / totalTicks
			if !math.IsNaN(cpuUsage) {
				msg.Metadata["usage"] = fmt.Sprintf("%v", cpuUsage)
			}

			memStats := &runtime.MemStats{}
			runtime.ReadMemStats(memStats)
			msg.Metadata["mem alloc"] = fmt.Sprintf("%v", uint32(memStats.Alloc)/(2<<20))
			msg.Metadata["mem sys"] = fmt.Sprintf("%v", uint32(memStats.Sys)/(2<<20))

			if buf, err := json.Marshal(msg); err == nil {
				select {
				case msgBufs <- buf:
				default:
				}
			}
		}
	}()

	go func() {
		var buf []byte
		var npr float64
		last := time.Now()
		for {
			now := time.Now()
			alpha := now.Sub(last).Seconds()
			last = now
			if alpha > 1 {
				alpha = 1
			}
			npr *= 1 - alpha

			select {
			case buf = <-priorityBufs:
			default:
				select {
				case buf = <-priorityBufs:
				case buf = <-msgBufs:
					if npr < h.MaxNPR {
						npr += 1
					} else {
						buf = nil
					}
				case <-ctx.Done():
					return
				}
			}

			if buf != nil {
				if err := c.WriteMessage(websocket.TextMessage, buf); err != nil {
					log.Println(err)
				}
			}
		}
	}()
}

func (h *ClientHandler) Execute(ctx context.Context, clientID string, cmd *message.Cmd, resp chan<- *message.Msg) {
	log.Println("ClientHandler:", cmd.Command)

	switch cmd.Command {
	case "get client id":
		msg := message.NewMsg("client id")
		msg.Metadata["id"] = clientID
		select {
		case resp <- msg:
		case <-ctx.Done():
		}
	case "list shows":
		cmd.Command = "pub all shows"
		h.relay(cmd)
	default:
		h.relay(cmd)
	}
}

func (h *ClientHandler) relay(cmd *message.Cmd) {
	if err := message.PublishCmd(h.Redis, live.CmdChannel(h.Namespace), cmd); err != nil {
		log.Println(err)
	}
}

// CPU sampling for usage calculation
func getCPUSample() (idle, total uint64) {
	contents, err := ioutil.ReadFile("/proc/stat")
	if err != nil {
		return
	}
	lines := strings.Split(string(contents), "\n")
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == "cpu" {
			numFields := len(fields)
			for i := 1; i < numFields; i++ {
				val, err := strconv.ParseUint(fields[i], 10, 64)
				if err != nil {
					continue
				}
				total += val
				if i == 4 {
					idle = val
				}
			}
			return
		}
	}
	return
}
