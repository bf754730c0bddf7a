// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rditech/rdi-bench/backend"
	"github.com/rditech/rdi-bench/live/message"
	"github.com/rditech/rdi-bench/live/shows"
	rdiplot "github.com/rditech/rdi-bench/plot"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

var ErrInvalidCommand = errors.New("invalid command")

// Controller is the part of the backend client that changes instrument
// state.
type Controller interface {
	PsuState(ctx context.Context, side backend.Side) (backend.PsuState, error)
	Toggle(ctx context.Context, side backend.Side) (backend.PsuState, error)
	SetVoltage(ctx context.Context, side backend.Side, volts float64) (float64, error)
	SetCurrent(ctx context.Context, side backend.Side, amps float64) (float64, error)
	Calibrate(ctx context.Context, saveToFile bool) (json.RawMessage, error)
}

func BroadcastChannel(namespace string) string {
	return namespace + " broadcast"
}

func CmdChannel(namespace string) string {
	return namespace + " cmd"
}

type ShowInfo struct {
	ID            string
	UUID          uuid.UUID
	Show          shows.Show
	Feed          func(*Snapshot) interface{}
	SampleChannel chan interface{}
}

// Dashboard owns the charts and the instrument state. It feeds every
// applied poll to the charts, publishes frames and status on the redis
// broadcast channel and executes commands.
type Dashboard struct {
	Namespace   string
	Redis       *redis.Client
	Addr        string
	Backend     Controller
	Store       *Store
	Poller      *Poller
	FramePeriod time.Duration

	showInfo map[string]*ShowInfo
	order    []string

	lastSeq     uint64
	lastPsu     []byte
	lastCalib   []byte
	lastPollErr string
}

// NewDashboard builds the store, poller and charts described by cfg.
func NewDashboard(cfg *Config, client *backend.Client, redisClient *redis.Client, addr string) (*Dashboard, error) {
	overlap, err := ParseOverlap(cfg.Overlap)
	if err != nil {
		return nil, err
	}

	store := NewStore()
	d := &Dashboard{
		Namespace: cfg.Namespace,
		Redis:     redisClient,
		Addr:      addr,
		Backend:   client,
		Store:     store,
		Poller: &Poller{
			Client:   client,
			Store:    store,
			Interval: cfg.Interval(),
			Overlap:  overlap,
		},
		FramePeriod: cfg.Frame(),
	}
	if d.Namespace == "" {
		d.Namespace = "bench"
	}

	for _, chart := range cfg.Charts {
		if err := d.AddChart(chart); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddChart builds the show for one chart definition.
func (d *Dashboard) AddChart(chart ChartConfig) error {
	if d.showInfo == nil {
		d.showInfo = make(map[string]*ShowInfo)
	}
	if _, ok := d.showInfo[chart.ID]; ok {
		return fmt.Errorf("chart %q: duplicate id", chart.ID)
	}

	info := &ShowInfo{
		ID:            chart.ID,
		UUID:          uuid.New(),
		SampleChannel: make(chan interface{}, 10000),
	}

	var domain rdiplot.Domain
	if chart.Min != nil && chart.Max != nil {
		domain = rdiplot.Domain{Min: *chart.Min, Max: *chart.Max}
	}

	switch chart.Kind {
	case MultiLineChart:
		show := &shows.MultiLine{
			Title:       chart.Title,
			Unit:        chart.Unit,
			Domain:      domain,
			MaxPoints:   chart.MaxPoints,
			Height:      chart.Height,
			FramePeriod: d.FramePeriod,
		}
		producers := make(map[string]Producer)
		for _, s := range chart.Series {
			producer, err := Source(s.Source)
			if err != nil {
				return fmt.Errorf("chart %q: %w", chart.ID, err)
			}
			producers[s.ID] = producer
			show.Series = append(show.Series, shows.Series{ID: s.ID, Label: s.Label, Color: s.Color})
		}
		info.Show = show
		info.Feed = func(snap *Snapshot) interface{} {
			sample := &shows.MultiLineSample{Values: make(map[string]interface{})}
			for id, producer := range producers {
				sample.Values[id] = producer(snap)
			}
			return sample
		}

	case LinearChart:
		k, err := Source(chart.K)
		if err != nil {
			return fmt.Errorf("chart %q: %w", chart.ID, err)
		}
		m, err := Source(chart.M)
		if err != nil {
			return fmt.Errorf("chart %q: %w", chart.ID, err)
		}
		info.Show = &shows.Linear{
			Title:       chart.Title,
			Unit:        chart.Unit,
			Color:       chart.Color,
			XMin:        chart.XMin,
			XMax:        chart.XMax,
			YMin:        domain.Min,
			YMax:        domain.Max,
			Points:      chart.Points,
			Height:      chart.Height,
			FramePeriod: d.FramePeriod,
		}
		info.Feed = func(snap *Snapshot) interface{} {
			return &shows.LinearSample{K: k(snap), M: m(snap)}
		}

	default:
		return fmt.Errorf("chart %q: unknown kind %q", chart.ID, chart.Kind)
	}

	d.showInfo[chart.ID] = info
	d.order = append(d.order, chart.ID)
	return nil
}

// Show returns the chart with the given id.
func (d *Dashboard) Show(id string) (shows.Show, bool) {
	info, ok := d.showInfo[id]
	if !ok {
		return nil, false
	}
	return info.Show, true
}

// Charts lists the chart ids in configuration order.
func (d *Dashboard) Charts() []string {
	return append([]string(nil), d.order...)
}

// Manage runs the dashboard until ctx is done. The poller has stopped and
// the store is closed when it returns.
func (d *Dashboard) Manage(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, id := range d.order {
		d.startShow(ctx, &wg, d.showInfo[id])
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		d.Poller.Run(ctx)
	}()
	defer func() {
		cancel()
		<-pollerDone
		d.Store.Close()
		wg.Wait()
	}()

	for _, side := range backend.Sides {
		cmd := message.NewCmd("psu state")
		cmd.Metadata["which"] = string(side)
		go d.execute(ctx, cmd)
	}

	cmds := message.ReceivePubSubCmds(ctx, d.Addr, CmdChannel(d.Namespace))
	d.announce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.Store.Changes():
			d.update()
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			if cmd.Command == "kill" {
				return
			}
			go d.execute(ctx, cmd)
		}
	}
}

func (d *Dashboard) startShow(ctx context.Context, wg *sync.WaitGroup, info *ShowInfo) {
	show := info.Show
	period := d.FramePeriod
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	wg.Add(2)

	go func() {
		defer wg.Done()
		log.Println("starting show", info.ID, "frame pusher")
		defer log.Println("stopped show", info.ID, "frame pusher")

		show.UpdateFrame()

		var lastFrameCount uint64
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			frame, frameCount := show.Frame()
			if frameCount != lastFrameCount {
				msg := *frame
				msg.Metadata = make(map[string]string, len(frame.Metadata)+2)
				for key, value := range frame.Metadata {
					msg.Metadata[key] = value
				}
				msg.Metadata["show id"] = info.ID
				msg.Metadata["show uuid"] = info.UUID.String()
				d.publish(&msg)
				time.Sleep(period)
			} else {
				time.Sleep(1 * time.Millisecond)
			}
			lastFrameCount = frameCount
		}
	}()

	go func() {
		defer wg.Done()
		log.Println("starting show", info.ID, "sample getter")
		defer log.Println("stopped show", info.ID, "sample getter")

		for {
			select {
			case <-ctx.Done():
				return
			case sample := <-info.SampleChannel:
				show.AddSample(sample)
			}
		}
	}()
}

// update publishes whatever changed in the store since the last call.
func (d *Dashboard) update() {
	st := d.Store.State()

	pollErr := ErrString(st.PollErr)
	if st.Seq != d.lastSeq || pollErr != d.lastPollErr {
		if st.Seq != d.lastSeq {
			d.feed(&st.Snapshot)
		}
		d.lastSeq = st.Seq
		d.lastPollErr = pollErr

		status := &Status{}
		Readouts(status, &st.Snapshot)
		msg := message.NewMsg(message.InstrumentStatus)
		msg.Metadata["seq"] = strconv.FormatUint(st.Seq, 10)
		msg.Metadata["error"] = pollErr
		msg.Payload, _ = json.Marshal(status)
		d.publish(msg)
	}

	psu := &Status{}
	PsuReadouts(psu, &st)
	if buf, err := json.Marshal(psu); err == nil && string(buf) != string(d.lastPsu) {
		d.lastPsu = buf
		msg := message.NewMsg(message.PsuStatus)
		msg.Metadata["error"] = ErrString(st.PsuErr)
		msg.Payload = buf
		d.publish(msg)
	}

	calib := message.NewMsg(message.CalibrationState)
	calib.Metadata["calibrating"] = strconv.FormatBool(st.Calibrating)
	calib.Metadata["message"] = st.CalibrationMsg
	calib.Metadata["error"] = ErrString(st.CalibrationErr)
	if buf, err := json.Marshal(calib.Metadata); err == nil && string(buf) != string(d.lastCalib) {
		d.lastCalib = buf
		d.publish(calib)
	}
}

// Feed hands one snapshot to every chart.
func (d *Dashboard) feed(snap *Snapshot) {
	for _, id := range d.order {
		info := d.showInfo[id]
		select {
		case info.SampleChannel <- info.Feed(snap):
		default:
			log.Println("show", id, "sample channel full, dropping sample")
		}
	}
}

func (d *Dashboard) announce() {
	for _, id := range d.order {
		info := d.showInfo[id]
		msg := message.NewMsg(message.ShowAnnounce)
		msg.Metadata["show id"] = id
		msg.Metadata["show uuid"] = info.UUID.String()
		switch info.Show.(type) {
		case *shows.MultiLine:
			msg.Metadata["show type"] = "Multi Line"
		case *shows.Linear:
			msg.Metadata["show type"] = "Linear"
		}
		d.publish(msg)
	}
}

func (d *Dashboard) publish(msg *message.Msg) {
	if d.Redis == nil {
		return
	}
	if err := message.PublishJsonMsg(d.Redis, BroadcastChannel(d.Namespace), msg); err != nil {
		log.Println(err)
	}
}

func (d *Dashboard) execute(ctx context.Context, cmd *message.Cmd) {
	if err := d.Do(ctx, cmd); err != nil {
		log.Printf("Dashboard: %v: %v", cmd.Command, err)
	}
}

// Do executes one command and waits for it to finish. Backend failures are
// recorded in the store as well as returned.
func (d *Dashboard) Do(ctx context.Context, cmd *message.Cmd) error {
	log.Println("Dashboard:", cmd.Command)

	switch cmd.Command {
	case "psu state":
		return d.psuState(ctx, cmd)
	case "toggle":
		return d.toggle(ctx, cmd)
	case "set voltage":
		return d.setpoint(ctx, cmd, d.Backend.SetVoltage, func(v float64) PsuPatch { return PsuPatch{Voltage: &v} })
	case "set current":
		return d.setpoint(ctx, cmd, d.Backend.SetCurrent, func(v float64) PsuPatch { return PsuPatch{Current: &v} })
	case "calibrate":
		return d.calibrate(ctx, cmd)
	case "show cmd":
		return d.showCmd(cmd)
	case "pub all shows":
		d.pubAllShows()
		return nil
	case "refresh":
		d.Poller.Poll()
		return nil
	}
	return fmt.Errorf("%w %q", ErrInvalidCommand, cmd.Command)
}

func (d *Dashboard) side(cmd *message.Cmd) (backend.Side, error) {
	side, err := backend.ParseSide(cmd.Metadata["which"])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return side, nil
}

func (d *Dashboard) psuState(ctx context.Context, cmd *message.Cmd) error {
	side, err := d.side(cmd)
	if err != nil {
		return err
	}
	if !d.Store.BeginPsu(side) {
		return ErrBusy
	}
	state, err := d.Backend.PsuState(ctx, side)
	d.Store.ApplyPsu(side, PsuPatch{IsOn: &state.IsOn}, err)
	return err
}

func (d *Dashboard) toggle(ctx context.Context, cmd *message.Cmd) error {
	side, err := d.side(cmd)
	if err != nil {
		return err
	}
	if !d.Store.BeginPsu(side) {
		return ErrBusy
	}
	state, err := d.Backend.Toggle(ctx, side)
	d.Store.ApplyPsu(side, PsuPatch{IsOn: &state.IsOn}, err)
	return err
}

func (d *Dashboard) setpoint(
	ctx context.Context,
	cmd *message.Cmd,
	set func(context.Context, backend.Side, float64) (float64, error),
	patch func(float64) PsuPatch,
) error {
	side, err := d.side(cmd)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(cmd.Metadata["value"])
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: setpoint %q", ErrInvalidCommand, value)
	}
	if !d.Store.BeginPsu(side) {
		return ErrBusy
	}
	applied, err := set(ctx, side, v)
	if err != nil {
		d.Store.ApplyPsu(side, PsuPatch{}, err)
		return err
	}
	d.Store.ApplyPsu(side, patch(applied), nil)
	return nil
}

func (d *Dashboard) calibrate(ctx context.Context, cmd *message.Cmd) error {
	save := strings.ToLower(cmd.Metadata["saveToFile"]) == "true"
	if !d.Store.BeginCalibration() {
		return ErrBusy
	}
	_, err := d.Backend.Calibrate(ctx, save)
	d.Store.ApplyCalibration(err)
	return err
}

func (d *Dashboard) showCmd(cmd *message.Cmd) error {
	info, ok := d.showInfo[cmd.Metadata["show id"]]
	if !ok {
		return fmt.Errorf("%w: unknown show %q", ErrInvalidCommand, cmd.Metadata["show id"])
	}

	showCmd := message.NewCmd(cmd.Metadata["show cmd"])
	for key, value := range cmd.Metadata {
		if key != "show id" && key != "show cmd" {
			showCmd.Metadata[key] = value
		}
	}
	if err := info.Show.Execute(showCmd); err != nil {
		return err
	}
	info.Show.UpdateFrame()
	return nil
}

func (d *Dashboard) pubAllShows() {
	d.announce()
	for _, id := range d.order {
		d.showInfo[id].Show.UpdateFrameCount()
	}
}
