// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package charts

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/rditech/rdi-bench/live"

	"github.com/gorilla/mux"
)

type svger interface {
	SVG() []byte
}

// ChartHandler serves the charts and the dashboard state over plain HTTP.
type ChartHandler struct {
	Dashboard *live.Dashboard
}

func (h *ChartHandler) Register(r *mux.Router) {
	r.HandleFunc("/charts/{id:[A-Za-z0-9_-]+}.svg", h.Frame).Methods(http.MethodGet)
	r.HandleFunc("/charts/{id:[A-Za-z0-9_-]+}/export.svg", h.Export).Methods(http.MethodGet)
	r.HandleFunc("/api/charts", h.List).Methods(http.MethodGet)
	r.HandleFunc("/api/state", h.State).Methods(http.MethodGet)
}

// Frame writes the most recent frame of a chart, rendering one if none has
// been published yet.
func (h *ChartHandler) Frame(w http.ResponseWriter, r *http.Request) {
	show, ok := h.Dashboard.Show(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}

	var payload []byte
	if frame, _ := show.Frame(); frame != nil {
		payload = frame.Payload
	} else if s, ok := show.(svger); ok {
		payload = s.SVG()
	}
	writeSVG(w, payload)
}

func (h *ChartHandler) Export(w http.ResponseWriter, r *http.Request) {
	show, ok := h.Dashboard.Show(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}

	payload, err := show.Export()
	if err != nil {
		log.Println("export:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+mux.Vars(r)["id"]+`.svg"`)
	writeSVG(w, payload)
}

func (h *ChartHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Dashboard.Charts())
}

func (h *ChartHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Dashboard.Store.State().JSON())
}

func writeSVG(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(payload)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println(err)
	}
}
