package web

import (
    "bytes"
    "html/template"
    "strings"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/app"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

type templates struct {
    base  *template.Template
    game  *template.Template
    board *template.Template
    index *template.Template
}

func funcs() template.FuncMap {
    return template.FuncMap{
        "eq": func(a, b any) bool { return a == b },
    }
}

func loadTemplates() *templates {
    base := template.Must(template.New("base").Funcs(funcs()).Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic Tac Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
    // Define the board template within the same set so game can include it
    template.Must(base.New("board").Funcs(funcs()).Parse(boardTemplate))
    index := template.Must(template.Must(base.Clone()).New("content").Parse(indexTemplate))
    game := template.Must(template.Must(base.Clone()).New("content").Parse(`
<h1>Tic Tac Toe</h1>
<div hx-ext="sse" hx-sse="connect:/game/{{.ID}}/events">
  <div hx-sse="swap:board">{{template "board" .}}</div>
</div>`))
    // Standalone board template used for fragment rendering
    board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
    return &templates{base: base, game: game, board: board, index: index}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
    var buf bytes.Buffer
    if name == "" {
        _ = t.Execute(&buf, data)
    } else {
        _ = t.ExecuteTemplate(&buf, name, data)
    }
    return buf.Bytes()
}

const indexTemplate = `<h1>Tic Tac Toe</h1>
<form action="/game" method="post">
  <label>Mode
    <select name="mode">
      {{range .Modes}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
    </select>
  </label>
  <label>Difficulty
    <select name="difficulty">
      {{range .Difficulties}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}
    </select>
  </label>
  <button>Create</button>
</form>`

const boardTemplate = `
<div id="board" data-version="{{.Version}}">
  {{if .Error}}
  <div class="alert">{{.Error}}</div>
  {{end}}
  <p class="status">{{.Status}}</p>
  {{/* 3x3 grid */}}
  {{range .Rows}}
  <div class="row">
    {{range .}}
      <form hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="i" value="{{.Index}}">
        <button type="submit"{{if .Winning}} class="winning"{{end}}{{if .Disabled}} disabled{{end}}>{{.Symbol}}</button>
      </form>
    {{end}}
  </div>
  {{end}}
  <div class="controls">
    <form hx-post="/game/{{.ID}}/undo" hx-target="#board" hx-swap="outerHTML" method="post">
      <button type="submit"{{if not .CanUndo}} disabled{{end}}>Undo Move</button>
    </form>
    <form hx-post="/game/{{.ID}}/reset" hx-target="#board" hx-swap="outerHTML" method="post">
      <button type="submit"{{if .Thinking}} disabled{{end}}>Reset Game</button>
    </form>
    {{range .Modes}}
    <form hx-post="/game/{{$.ID}}/mode" hx-target="#board" hx-swap="outerHTML" method="post">
      <input type="hidden" name="mode" value="{{.Value}}">
      <button type="submit"{{if .Selected}} class="selected"{{end}}{{if $.Thinking}} disabled{{end}}>{{.Label}}</button>
    </form>
    {{end}}
  </div>
  {{if .VsComputer}}
  <div class="difficulty">
    {{range .Difficulties}}
    <form hx-post="/game/{{$.ID}}/difficulty" hx-target="#board" hx-swap="outerHTML" method="post">
      <input type="hidden" name="level" value="{{.Value}}">
      <button type="submit"{{if .Selected}} class="selected"{{end}}{{if $.Thinking}} disabled{{end}}>{{.Label}}</button>
    </form>
    {{end}}
    <p>Current Difficulty: {{.Difficulty}}<br>{{.DifficultyDescription}}</p>
  </div>
  {{end}}
  <ol class="history" start="0">
    {{range .History}}
    <li>
      <form hx-post="/game/{{$.ID}}/jump" hx-target="#board" hx-swap="outerHTML" method="post">
        <input type="hidden" name="move" value="{{.}}">
        <button type="submit"{{if eq . $.Move}} class="current"{{end}}{{if $.Thinking}} disabled{{end}}>{{if eq . 0}}Go to game start{{else}}Go to move #{{.}}{{end}}</button>
      </form>
    </li>
    {{end}}
  </ol>
</div>
`

type option struct {
    Value    string
    Label    string
    Selected bool
}

type cellView struct {
    Index    int
    Symbol   string
    Winning  bool
    Disabled bool
}

// boardView is what the board template renders.
type boardView struct {
    ID                    string
    Version               uint64
    Error                 string
    Status                string
    Rows                  [][]cellView
    Thinking              bool
    VsComputer            bool
    CanUndo               bool
    Move                  int
    History               []int
    Difficulty            string
    DifficultyDescription string
    Modes                 []option
    Difficulties          []option
}

var (
    allModes        = []app.Mode{app.PlayerVsComputer, app.PlayerVsPlayer}
    allDifficulties = []ai.Difficulty{ai.Easy, ai.Medium, ai.Hard}
)

func modeLabel(m app.Mode) string {
    if m == app.PlayerVsPlayer {
        return "Player vs Player"
    }
    return "Player vs Computer"
}

func modeOptions(selected app.Mode) []option {
    out := make([]option, 0, len(allModes))
    for _, m := range allModes {
        out = append(out, option{Value: m.String(), Label: modeLabel(m), Selected: m == selected})
    }
    return out
}

func difficultyOptions(selected ai.Difficulty) []option {
    out := make([]option, 0, len(allDifficulties))
    for _, d := range allDifficulties {
        label := d.String()
        label = strings.ToUpper(label[:1]) + label[1:]
        out = append(out, option{Value: d.String(), Label: label, Selected: d == selected})
    }
    return out
}

func newBoardView(st app.Snapshot, errMsg string) boardView {
    over := st.Outcome.Decided()
    humanTurn := st.State == app.AwaitingHumanMove &&
        !(st.Mode == app.PlayerVsComputer && st.CurrentPlayer == app.Computer)
    winning := map[int]bool{}
    if st.Outcome.Status == domain.Win {
        for _, i := range st.Outcome.Line {
            winning[i] = true
        }
    }
    rows := make([][]cellView, 3)
    for i, c := range st.Board {
        rows[i/3] = append(rows[i/3], cellView{
            Index:    i,
            Symbol:   c.String(),
            Winning:  winning[i],
            Disabled: over || !humanTurn || c != domain.Empty,
        })
    }
    history := make([]int, len(st.History))
    for i := range history {
        history[i] = i
    }
    return boardView{
        ID:                    st.ID,
        Version:               st.Version,
        Error:                 errMsg,
        Status:                st.StatusText(),
        Rows:                  rows,
        Thinking:              st.ComputerThinking(),
        VsComputer:            st.Mode == app.PlayerVsComputer,
        CanUndo:               st.Move > 0 && !st.ComputerThinking(),
        Move:                  st.Move,
        History:               history,
        Difficulty:            st.Difficulty.String(),
        DifficultyDescription: st.Difficulty.Description(),
        Modes:                 modeOptions(st.Mode),
        Difficulties:          difficultyOptions(st.Difficulty),
    }
}
