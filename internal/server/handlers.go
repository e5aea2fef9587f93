package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"nhooyr.io/websocket"

	"github.com/user/expectctl/internal/config"
	"github.com/user/expectctl/internal/expect"
	"github.com/user/expectctl/internal/record"
	"github.com/user/expectctl/internal/script"
)

const maxScriptBytes = 1 << 20

type handler struct {
	cfg   config.Config
	mgr   *expect.Manager
	store *record.Store
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.mgr.List())
}

func (h *handler) removeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Remove(r.PathValue("id")); err != nil {
		jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, http.StatusServiceUnavailable, "transcript recording disabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	events, err := h.store.List(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []record.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

func (h *handler) getSummary(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, http.StatusServiceUnavailable, "transcript recording disabled")
		return
	}
	summary, err := h.store.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"summary": summary})
}

type runResponse struct {
	Name    string              `json:"name"`
	Results []script.StepResult `json:"results"`
	Error   string              `json:"error,omitempty"`
}

// runScript executes a YAML script from the request body and returns every
// step result. A failed step yields 200 with the error recorded in the
// body; only malformed scripts are rejected up front.
func (h *handler) runScript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScriptBytes))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	sc, err := script.Parse(body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner := script.NewRunner(h.cfg.SessionOptions(), h.store, h.mgr)
	results, runErr := runner.Run(r.Context(), sc)

	resp := runResponse{Name: sc.Name, Results: results}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	jsonResponse(w, http.StatusOK, resp)
}

// streamScript runs a script over a websocket. The client's first text
// message is the script YAML; each step result is sent back as a JSON
// message as it completes, followed by a final done message.
func (h *handler) streamScript(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	conn.SetReadLimit(maxScriptBytes)

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	sc, err := script.Parse(data)
	if err != nil {
		writeJSON(ctx, conn, streamMessage{Type: "error", Error: err.Error()})
		return
	}

	runner := script.NewRunner(h.cfg.SessionOptions(), h.store, h.mgr)
	runner.OnStep = func(res script.StepResult) {
		writeJSON(ctx, conn, streamMessage{Type: "step", Result: &res})
	}

	_, runErr := runner.Run(ctx, sc)
	done := streamMessage{Type: "done"}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	writeJSON(ctx, conn, done)
}

type streamMessage struct {
	Type   string             `json:"type"`
	Result *script.StepResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}
