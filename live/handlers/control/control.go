// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package control

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/rditech/rdi-bench/backend"
	"github.com/rditech/rdi-bench/live"
	"github.com/rditech/rdi-bench/live/message"

	"github.com/gorilla/mux"
)

type setpointRequest struct {
	Setpoint live.Reading `json:"setpoint"`
}

// ControlHandler exposes the PSU and calibration commands as REST calls.
// Backend failures are answered with 502 and the backend status text.
type ControlHandler struct {
	Dashboard *live.Dashboard
}

func (h *ControlHandler) Register(r *mux.Router) {
	psu := r.PathPrefix("/api/psu/{which:upper|lower}").Subrouter()
	psu.HandleFunc("/state", h.Psu("psu state")).Methods(http.MethodPost)
	psu.HandleFunc("/toggle", h.Psu("toggle")).Methods(http.MethodPost)
	psu.HandleFunc("/set/{quantity:voltage|current}", h.Set).Methods(http.MethodPost)
	r.HandleFunc("/api/calibrate", h.Calibrate).Methods(http.MethodPost)
}

func (h *ControlHandler) Psu(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd := message.NewCmd(command)
		cmd.Metadata["which"] = mux.Vars(r)["which"]
		h.do(w, r, cmd)
	}
}

func (h *ControlHandler) Set(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req setpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := message.NewCmd("set " + vars["quantity"])
	cmd.Metadata["which"] = vars["which"]
	if req.Setpoint.Valid {
		cmd.Metadata["value"] = strconv.FormatFloat(req.Setpoint.Value, 'g', -1, 64)
	}
	h.do(w, r, cmd)
}

func (h *ControlHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req backend.CalibrationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	cmd := message.NewCmd("calibrate")
	cmd.Metadata["saveToFile"] = strconv.FormatBool(req.SaveToFile)
	if err := h.Dashboard.Do(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}

	st := h.Dashboard.Store.State()
	writeJSON(w, map[string]interface{}{"message": st.CalibrationMsg})
}

func (h *ControlHandler) do(w http.ResponseWriter, r *http.Request, cmd *message.Cmd) {
	if err := h.Dashboard.Do(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}

	side := backend.Side(cmd.Metadata["which"])
	writeJSON(w, h.Dashboard.Store.State().Psu[side].JSON())
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, live.ErrBusy):
		code = http.StatusConflict
	case errors.Is(err, live.ErrInvalidCommand):
		code = http.StatusBadRequest
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println(err)
	}
}
