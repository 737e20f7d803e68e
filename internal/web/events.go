package web

import (
    "bytes"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/gorilla/websocket"
    "github.com/jaminalder/tictactoe-engine/internal/app"
)

var heartbeatInterval = 15 * time.Second

// writeSSE emits one event. Multi-line payloads become several data lines.
func writeSSE(w io.Writer, event string, payload []byte) {
    _, _ = fmt.Fprintf(w, "event: %s\n", event)
    for _, line := range bytes.Split(bytes.TrimRight(payload, "\n"), []byte("\n")) {
        _, _ = fmt.Fprintf(w, "data: %s\n", line)
    }
    _, _ = io.WriteString(w, "\n")
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    if _, ok := h.svc.Get(id); !ok {
        http.NotFound(w, r)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("X-Accel-Buffering", "no")
    // In tests or non-EventSource requests, just acknowledge headers and return
    if r.Header.Get("Accept") != "text/event-stream" {
        w.WriteHeader(http.StatusOK)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        w.WriteHeader(http.StatusOK)
        return
    }
    ctx := r.Context()
    ch, unsub, err := h.svc.Subscribe(ctx, id)
    if err != nil {
        w.WriteHeader(http.StatusOK)
        return
    }
    defer unsub()
    // heartbeat ticker
    ticker := time.NewTicker(heartbeatInterval)
    defer ticker.Stop()
    // Initial flush of headers
    flusher.Flush()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            _, _ = io.WriteString(w, ": ping\n\n")
            flusher.Flush()
        case st, ok := <-ch:
            if !ok {
                return
            }
            writeSSE(w, "board", h.renderBoard(st, ""))
            flusher.Flush()
        }
    }
}

const wsIdlePingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

type wsCommand struct {
    Index *int `json:"index"`
}

var errIndexRequired = errors.New("index is required")

// commandIndex extracts the index of a play or jump command.
func commandIndex(payload json.RawMessage) (int, error) {
    if len(payload) == 0 {
        return 0, errIndexRequired
    }
    var cmd wsCommand
    if err := json.Unmarshal(payload, &cmd); err != nil {
        return 0, fmt.Errorf("invalid command payload: %w", err)
    }
    if cmd.Index == nil {
        return 0, errIndexRequired
    }
    return *cmd.Index, nil
}

// encodeMessage wraps payload in a typed frame. It returns nil when either
// part cannot be encoded; nil frames are never sent.
func encodeMessage(typ string, payload any) []byte {
    msg := wsMessage{Type: typ}
    if payload != nil {
        b, err := json.Marshal(payload)
        if err != nil {
            return nil
        }
        msg.Payload = b
    }
    b, err := json.Marshal(msg)
    if err != nil {
        return nil
    }
    return b
}

func stateMessage(st app.Snapshot) []byte {
    return encodeMessage("state", newStateDTO(st))
}

func errorMessageWS(err error) []byte {
    return encodeMessage("error", errorDTO{Error: err.Error()})
}

// ws streams state updates as JSON and accepts play/jump/undo/reset commands.
func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    gs, ok := h.svc.Get(id)
    if !ok {
        http.NotFound(w, r)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    ctx := r.Context()
    updates, unsub, err := h.svc.Subscribe(ctx, id)
    if err != nil {
        _ = conn.Close()
        return
    }
    defer unsub()

    send := make(chan []byte, 16)
    done := make(chan struct{})
    go func() {
        defer close(done)
        defer conn.Close()
        if err := writeWSWithHeartbeat(conn, send); err != nil {
            h.log.Debug("websocket write failed", "id", id, "err", err)
        }
    }()
    queue := func(b []byte) {
        if b == nil {
            h.log.Warn("websocket message not encoded", "id", id)
            return
        }
        select {
        case send <- b:
        default:
        }
    }
    queue(stateMessage(gs))

    // forward broadcasts until the subscription ends
    forwarded := make(chan struct{})
    go func() {
        defer close(forwarded)
        for st := range updates {
            queue(stateMessage(st))
        }
    }()

    for {
        _, message, err := conn.ReadMessage()
        if err != nil {
            break
        }
        var msg wsMessage
        if err := json.Unmarshal(message, &msg); err != nil {
            continue
        }
        var opErr error
        switch msg.Type {
        case "request_state":
            if st, ok := h.svc.Get(id); ok {
                queue(stateMessage(st))
            }
        case "play":
            var idx int
            if idx, opErr = commandIndex(msg.Payload); opErr == nil {
                _, opErr = h.svc.Play(id, idx)
            }
        case "jump":
            var idx int
            if idx, opErr = commandIndex(msg.Payload); opErr == nil {
                _, opErr = h.svc.Jump(id, idx)
            }
        case "undo":
            _, opErr = h.svc.Undo(id)
        case "reset":
            _, opErr = h.svc.Reset(id)
        }
        if opErr != nil {
            queue(errorMessageWS(opErr))
        }
    }
    unsub()
    <-forwarded
    close(send)
    <-done
}

func writeWSWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
    ticker := time.NewTicker(wsIdlePingInterval)
    defer ticker.Stop()
    lastWrite := time.Now()
    pingPayload := encodeMessage("ping", nil)

    for {
        select {
        case msg, ok := <-send:
            if !ok {
                return nil
            }
            if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
                return err
            }
            lastWrite = time.Now()
        case <-ticker.C:
            if time.Since(lastWrite) < wsIdlePingInterval {
                continue
            }
            if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
                return err
            }
            lastWrite = time.Now()
        }
    }
}
