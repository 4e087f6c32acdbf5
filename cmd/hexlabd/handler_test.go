// Copyright 2026 The Hexlab Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hexlab-tools/hexlab/lib/console"
	"github.com/hexlab-tools/hexlab/lib/content"
	"github.com/hexlab-tools/hexlab/lib/interp"
	"github.com/hexlab-tools/hexlab/lib/schedule"
	"github.com/hexlab-tools/hexlab/lib/session"
)

func newTestAPI(t *testing.T) *apiServer {
	t.Helper()

	image := content.NewSparse()
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	image.Put(0, data)

	shared := console.New(io.Discard, console.DefaultRingCapacity)
	sess, err := session.New(session.Config{
		Reader:  image,
		Console: shared,
	})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	sched, err := schedule.New(schedule.Config{
		Session: sess,
		Workers: 2,
	})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}
	t.Cleanup(sched.Close)

	return &apiServer{
		session:   sess,
		scheduler: sched,
		interp:    interp.New(),
		console:   shared,
		logger:    slog.New(slog.DiscardHandler),
	}
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeExecute(t *testing.T, recorder *httptest.ResponseRecorder) executeResponse {
	t.Helper()
	var response executeResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response %q: %v", recorder.Body.String(), err)
	}
	return response
}

func sessionAddress(t *testing.T, handler http.Handler) uint64 {
	t.Helper()
	recorder := doJSON(t, handler, http.MethodGet, "/state", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("GET /state: status %d", recorder.Code)
	}
	var state stateResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	return state.Address
}

func TestExecuteSnapshotDoesNotPublish(t *testing.T) {
	handler := newTestAPI(t).routes()

	recorder := doJSON(t, handler, http.MethodPost, "/execute", executeRequest{
		Commands: []string{"s 0x40", "s"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /execute: status %d, body %s", recorder.Code, recorder.Body)
	}
	response := decodeExecute(t, recorder)
	if !strings.Contains(response.Output, "0x40") {
		t.Errorf("output %q does not show the task's address", response.Output)
	}
	if response.Committed {
		t.Error("request task committed without opting in")
	}
	if address := sessionAddress(t, handler); address != 0 {
		t.Errorf("session address moved to %#x without propagation", address)
	}
}

func TestExecutePropagatesAddressOnRequest(t *testing.T) {
	handler := newTestAPI(t).routes()

	recorder := doJSON(t, handler, http.MethodPost, "/execute", executeRequest{
		Commands:         []string{"s 0x80"},
		PropagateAddress: true,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /execute: status %d, body %s", recorder.Code, recorder.Body)
	}
	response := decodeExecute(t, recorder)
	if !response.Committed {
		t.Error("expected committed response")
	}
	if address := sessionAddress(t, handler); address != 0x80 {
		t.Errorf("session address: got %#x, want 0x80", address)
	}
}

func TestExecuteCommandFailure(t *testing.T) {
	handler := newTestAPI(t).routes()

	recorder := doJSON(t, handler, http.MethodPost, "/execute", executeRequest{
		Commands: []string{"definitely-not-a-command"},
	})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", recorder.Code)
	}
	response := decodeExecute(t, recorder)
	if !strings.Contains(response.Error, "unknown command") {
		t.Errorf("error %q does not name the unknown command", response.Error)
	}
}

func TestExecuteRejectsEmptyBody(t *testing.T) {
	handler := newTestAPI(t).routes()

	recorder := doJSON(t, handler, http.MethodPost, "/execute", executeRequest{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", recorder.Code)
	}
}

func TestConsoleReplay(t *testing.T) {
	handler := newTestAPI(t).routes()

	// Even discarded tasks flush their buffered output to the shared
	// console, so the replay ring has the hexdump afterwards.
	recorder := doJSON(t, handler, http.MethodPost, "/execute", executeRequest{
		Commands: []string{"px 16"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("POST /execute: status %d", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/console?from=0", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("GET /console: status %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "0x00000000") {
		t.Errorf("console replay %q missing hexdump row", recorder.Body.String())
	}
	if recorder.Header().Get("X-Console-Offset") == "0" {
		t.Error("console offset did not advance")
	}
}

func TestConsoleRejectsBadOffset(t *testing.T) {
	handler := newTestAPI(t).routes()
	recorder := doJSON(t, handler, http.MethodGet, "/console?from=banana", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", recorder.Code)
	}
}

func TestHealth(t *testing.T) {
	handler := newTestAPI(t).routes()
	recorder := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", recorder.Code)
	}
}
