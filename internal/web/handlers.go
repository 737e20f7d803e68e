package web

import (
    "errors"
    "log/slog"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"
    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/app"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

type handlers struct {
    svc *app.Service
    tpl *templates
    log *slog.Logger
}

func (h *handlers) renderBoard(st app.Snapshot, errMsg string) []byte {
    return renderTemplate(h.tpl.board, "", newBoardView(st, errMsg))
}

func (h *handlers) writeBoard(w http.ResponseWriter, st app.Snapshot, errMsg string) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    _, _ = w.Write(h.renderBoard(st, errMsg))
}

// errorMessage maps service and domain errors to the text shown above the board.
func errorMessage(err error) string {
    switch {
    case err == nil:
        return ""
    case errors.Is(err, app.ErrInvalidTransition):
        return "Not your turn"
    case errors.Is(err, domain.ErrOccupied):
        return "Cell is occupied"
    case errors.Is(err, domain.ErrOutOfBounds):
        return "Out of bounds"
    case errors.Is(err, domain.ErrGameOver):
        return "Game is over"
    case errors.Is(err, domain.ErrIndexOutOfRange):
        return "No such move"
    default:
        return "Invalid move"
    }
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
    data := struct {
        Modes        []option
        Difficulties []option
    }{
        Modes:        modeOptions(h.svc.DefaultMode()),
        Difficulties: difficultyOptions(h.svc.DefaultDifficulty()),
    }
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(renderTemplate(h.tpl.index, "", data))
}

// parseSettings reads optional mode and difficulty values, falling back to
// the service defaults when a value is empty.
func (h *handlers) parseSettings(modeStr, diffStr string) (app.Mode, ai.Difficulty, error) {
    mode, diff := h.svc.DefaultMode(), h.svc.DefaultDifficulty()
    var err error
    if modeStr != "" {
        if mode, err = app.ParseMode(modeStr); err != nil {
            return 0, 0, err
        }
    }
    if diffStr != "" {
        if diff, err = ai.ParseDifficulty(diffStr); err != nil {
            return 0, 0, err
        }
    }
    return mode, diff, nil
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
    _ = r.ParseForm()
    mode, diff, err := h.parseSettings(r.Form.Get("mode"), r.Form.Get("difficulty"))
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }
    gs, err := h.svc.CreateGame(mode, diff)
    if err != nil {
        http.Error(w, "failed to create", http.StatusInternalServerError)
        return
    }
    http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
    gs, ok := h.svc.Get(chi.URLParam(r, "id"))
    if !ok {
        http.NotFound(w, r)
        return
    }
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    // Render page with embedded board container
    _, _ = w.Write(renderTemplate(h.tpl.game, "", newBoardView(gs, "")))
}

// formAction runs op with the parsed form and answers with the board fragment.
func (h *handlers) formAction(w http.ResponseWriter, r *http.Request, op func(id string) (app.Snapshot, error)) {
    id := chi.URLParam(r, "id")
    if _, ok := h.svc.Get(id); !ok {
        http.NotFound(w, r)
        return
    }
    _ = r.ParseForm()
    gs, err := op(id)
    if errors.Is(err, app.ErrNotFound) {
        http.NotFound(w, r)
        return
    }
    if err != nil {
        h.log.Debug("rejected", "id", id, "path", r.URL.Path, "err", err)
    }
    h.writeBoard(w, gs, errorMessage(err))
}

func formInt(r *http.Request, key string) int {
    v, err := strconv.Atoi(r.Form.Get(key))
    if err != nil {
        return -1
    }
    return v
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, func(id string) (app.Snapshot, error) {
        return h.svc.Play(id, formInt(r, "i"))
    })
}

func (h *handlers) jump(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, func(id string) (app.Snapshot, error) {
        return h.svc.Jump(id, formInt(r, "move"))
    })
}

func (h *handlers) undo(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, h.svc.Undo)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, h.svc.Reset)
}

func (h *handlers) difficulty(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, func(id string) (app.Snapshot, error) {
        d, err := ai.ParseDifficulty(r.Form.Get("level"))
        if err != nil {
            gs, _ := h.svc.Get(id)
            return gs, err
        }
        return h.svc.SetDifficulty(id, d)
    })
}

func (h *handlers) mode(w http.ResponseWriter, r *http.Request) {
    h.formAction(w, r, func(id string) (app.Snapshot, error) {
        m, err := app.ParseMode(r.Form.Get("mode"))
        if err != nil {
            gs, _ := h.svc.Get(id)
            return gs, err
        }
        return h.svc.SetMode(id, m)
    })
}
