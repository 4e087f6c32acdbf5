// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hexlab-tools/hexlab/lib/console"
	"github.com/hexlab-tools/hexlab/lib/interp"
	"github.com/hexlab-tools/hexlab/lib/schedule"
	"github.com/hexlab-tools/hexlab/lib/session"
	"github.com/hexlab-tools/hexlab/lib/version"
)

// apiServer exposes the shared session over HTTP. Every /execute
// request runs as a request-kind task: a snapshot workspace that
// publishes nothing unless the request opts in.
type apiServer struct {
	session   *session.Session
	scheduler *schedule.Scheduler
	interp    *interp.Interpreter
	console   *console.Console
	logger    *slog.Logger
}

func (a *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", a.handleExecute)
	mux.HandleFunc("GET /state", a.handleState)
	mux.HandleFunc("GET /console", a.handleConsole)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	return mux
}

// executeRequest is the POST /execute body.
type executeRequest struct {
	// Commands are interpreter lines, run in order. A failing line
	// stops the script.
	Commands []string `json:"commands"`

	// PropagateAddress commits the task's final address to the
	// session. Off by default: requests are read-only observers.
	PropagateAddress bool `json:"propagate_address,omitempty"`

	// PropagateConfig commits the task's config changes.
	PropagateConfig bool `json:"propagate_config,omitempty"`
}

type executeResponse struct {
	TaskID    string `json:"task_id"`
	Output    string `json:"output"`
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

func (a *apiServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if len(req.Commands) == 0 {
		httpError(w, http.StatusBadRequest, errors.New("commands must not be empty"))
		return
	}

	task := schedule.Task{
		Kind: schedule.Request,
		Name: req.Commands[0],
		Run: func(ctx context.Context, tc *session.Context) error {
			return a.interp.ExecuteScript(ctx, tc, req.Commands)
		},
	}
	if req.PropagateAddress {
		task.PropagateAddress = &req.PropagateAddress
	}
	if req.PropagateConfig {
		task.PropagateConfig = &req.PropagateConfig
	}

	handle, err := a.scheduler.Submit(task)
	if err != nil {
		if errors.Is(err, schedule.ErrSchedulerClosed) {
			httpError(w, http.StatusServiceUnavailable, err)
			return
		}
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	if err := handle.Wait(r.Context()); err != nil {
		// Client went away; the task still runs to completion.
		httpError(w, http.StatusRequestTimeout, err)
		return
	}

	response := executeResponse{
		TaskID: handle.ID().String(),
		Output: string(handle.Output()),
	}
	switch err := handle.Err(); {
	case err == nil:
		response.Committed = req.PropagateAddress || req.PropagateConfig
		writeJSON(w, http.StatusOK, response)
	case errors.Is(err, session.ErrAddressConflict):
		response.Error = err.Error()
		writeJSON(w, http.StatusConflict, response)
	default:
		response.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, response)
	}
}

// stateResponse is the GET /state body.
type stateResponse struct {
	Address       uint64 `json:"address"`
	BlockSize     int    `json:"block_size"`
	BlockValid    bool   `json:"block_valid"`
	SettingsCount int    `json:"settings_count"`
	ConsoleOffset uint64 `json:"console_offset"`
}

func (a *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := a.session.CurrentState(r.Context())
	if err != nil {
		httpError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Address:       state.Address,
		BlockSize:     state.BlockSize,
		BlockValid:    state.BlockValid,
		SettingsCount: state.SettingsCount,
		ConsoleOffset: state.ConsoleOffset,
	})
}

// handleConsole streams the console replay ring from the offset in
// the "from" query parameter. The X-Console-Offset header carries the
// offset to poll from next.
func (a *apiServer) handleConsole(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, fmt.Errorf("invalid from offset %q", raw))
			return
		}
		from = parsed
	}
	data := a.console.ReplayFrom(from)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Console-Offset", strconv.FormatUint(a.console.Offset(), 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Info(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
