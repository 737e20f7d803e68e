package web

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"
    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/app"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
    "github.com/jaminalder/tictactoe-engine/internal/store"
)

type stateDTO struct {
    ID               string    `json:"id"`
    Mode             string    `json:"mode"`
    Difficulty       string    `json:"difficulty"`
    Board            [9]string `json:"board"`
    CurrentPlayer    string    `json:"current_player"`
    Status           string    `json:"status"`
    Winner           string    `json:"winner,omitempty"`
    WinningLine      []int     `json:"winning_line,omitempty"`
    State            string    `json:"state"`
    ComputerThinking bool      `json:"computer_thinking"`
    Move             int       `json:"move"`
    HistoryLen       int       `json:"history_len"`
    Message          string    `json:"message"`
    Version          uint64    `json:"version"`
}

func newStateDTO(st app.Snapshot) stateDTO {
    dto := stateDTO{
        ID:               st.ID,
        Mode:             st.Mode.String(),
        Difficulty:       st.Difficulty.String(),
        CurrentPlayer:    st.CurrentPlayer.String(),
        Status:           st.Outcome.Status.String(),
        State:            st.State.String(),
        ComputerThinking: st.ComputerThinking(),
        Move:             st.Move,
        HistoryLen:       len(st.History),
        Message:          st.StatusText(),
        Version:          st.Version,
    }
    for i, c := range st.Board {
        dto.Board[i] = c.String()
    }
    if st.Outcome.Status == domain.Win {
        dto.Winner = st.Outcome.Winner.String()
        dto.WinningLine = st.Outcome.Line[:]
    }
    return dto
}

type errorDTO struct {
    Error string `json:"error"`
}

type indexRequest struct {
    Index *int `json:"index"`
}

type settingsRequest struct {
    Mode       string `json:"mode"`
    Difficulty string `json:"difficulty"`
}

type computerResponse struct {
    Index int      `json:"index"`
    State stateDTO `json:"state"`
}

type statsResponse struct {
    Stats  store.Stats    `json:"stats"`
    Recent []store.Result `json:"recent"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
    switch {
    case errors.Is(err, app.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrStale):
        return http.StatusConflict
    case errors.Is(err, domain.ErrIllegalMove), errors.Is(err, domain.ErrIndexOutOfRange),
        errors.Is(err, ai.ErrNoLegalMoves):
        return http.StatusUnprocessableEntity
    case errors.Is(err, errBadRequest):
        return http.StatusBadRequest
    default:
        return http.StatusInternalServerError
    }
}

func writeError(w http.ResponseWriter, err error) {
    writeJSON(w, statusFor(err), errorDTO{Error: err.Error()})
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
    if r.ContentLength == 0 {
        return nil
    }
    err := json.NewDecoder(r.Body).Decode(v)
    if err != nil && !errors.Is(err, io.EOF) {
        return errors.Join(errBadRequest, err)
    }
    return nil
}

func decodeIndex(r *http.Request) (int, error) {
    var req indexRequest
    if err := decode(r, &req); err != nil {
        return 0, err
    }
    if req.Index == nil {
        return 0, errors.Join(errBadRequest, errors.New("index is required"))
    }
    return *req.Index, nil
}

// apiAction answers with the state returned by op, or the mapped error.
func (h *handlers) apiAction(w http.ResponseWriter, op func() (app.Snapshot, error)) {
    st, err := op()
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, newStateDTO(st))
}

func (h *handlers) apiCreate(w http.ResponseWriter, r *http.Request) {
    var req settingsRequest
    if err := decode(r, &req); err != nil {
        writeError(w, err)
        return
    }
    mode, diff, err := h.parseSettings(req.Mode, req.Difficulty)
    if err != nil {
        writeError(w, errors.Join(errBadRequest, err))
        return
    }
    st, err := h.svc.CreateGame(mode, diff)
    if err != nil {
        writeError(w, err)
        return
    }
    w.Header().Set("Location", "/api/games/"+st.ID)
    writeJSON(w, http.StatusCreated, newStateDTO(st))
}

func (h *handlers) apiGet(w http.ResponseWriter, r *http.Request) {
    st, ok := h.svc.Get(chi.URLParam(r, "id"))
    if !ok {
        writeError(w, app.ErrNotFound)
        return
    }
    writeJSON(w, http.StatusOK, newStateDTO(st))
}

func (h *handlers) apiHistory(w http.ResponseWriter, r *http.Request) {
    boards, err := h.svc.History(chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    out := make([]string, len(boards))
    for i, b := range boards {
        out[i] = b.String()
    }
    writeJSON(w, http.StatusOK, map[string][]string{"history": out})
}

func (h *handlers) apiMove(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    idx, err := decodeIndex(r)
    if err != nil {
        writeError(w, err)
        return
    }
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.Play(id, idx) })
}

// apiComputer requests the computer move and waits for it to land.
func (h *handlers) apiComputer(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    ch, err := h.svc.RequestComputerMove(id)
    if err != nil {
        writeError(w, err)
        return
    }
    select {
    case res := <-ch:
        if res.Err != nil {
            writeError(w, res.Err)
            return
        }
        st, _ := h.svc.Get(id)
        writeJSON(w, http.StatusOK, computerResponse{Index: res.Index, State: newStateDTO(st)})
    case <-r.Context().Done():
        // the move still lands; the client just stopped waiting
    }
}

func (h *handlers) apiJump(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    idx, err := decodeIndex(r)
    if err != nil {
        writeError(w, err)
        return
    }
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.Jump(id, idx) })
}

func (h *handlers) apiUndo(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.Undo(id) })
}

func (h *handlers) apiReset(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.Reset(id) })
}

func (h *handlers) apiDifficulty(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    var req settingsRequest
    if err := decode(r, &req); err != nil {
        writeError(w, err)
        return
    }
    d, err := ai.ParseDifficulty(req.Difficulty)
    if err != nil {
        writeError(w, errors.Join(errBadRequest, err))
        return
    }
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.SetDifficulty(id, d) })
}

func (h *handlers) apiMode(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    var req settingsRequest
    if err := decode(r, &req); err != nil {
        writeError(w, err)
        return
    }
    m, err := app.ParseMode(req.Mode)
    if err != nil {
        writeError(w, errors.Join(errBadRequest, err))
        return
    }
    h.apiAction(w, func() (app.Snapshot, error) { return h.svc.SetMode(id, m) })
}

func (h *handlers) apiStats(w http.ResponseWriter, r *http.Request) {
    recent := 10
    if v := r.URL.Query().Get("recent"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 0 {
            writeError(w, errors.Join(errBadRequest, errors.New("recent must be a non-negative integer")))
            return
        }
        recent = n
    }
    stats, results, err := h.svc.Stats(r.Context(), recent)
    if err != nil {
        h.log.Error("stats failed", "err", err)
        writeError(w, err)
        return
    }
    if results == nil {
        results = []store.Result{}
    }
    writeJSON(w, http.StatusOK, statsResponse{Stats: stats, Recent: results})
}
