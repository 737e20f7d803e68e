// Command tictactoe-cli plays tic-tac-toe against the computer in a terminal.
package main

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "os"
    "strconv"
    "strings"

    "github.com/google/uuid"
    "github.com/muesli/termenv"

    "github.com/jaminalder/tictactoe-engine/internal/ai"
    "github.com/jaminalder/tictactoe-engine/internal/app"
    "github.com/jaminalder/tictactoe-engine/internal/config"
    "github.com/jaminalder/tictactoe-engine/internal/domain"
)

const help = "commands: 0-8 move, u undo, r reset, d <easy|medium|hard> difficulty, q quit"

type cli struct {
    in   io.Reader
    out  *termenv.Output
    sess *app.Session
}

func main() {
    os.Exit(runMain(os.Args[0], os.Args[1:], os.Getenv, os.Stdin, os.Stdout))
}

func runMain(name string, args []string, getenv func(string) string, in io.Reader, out io.Writer) int {
    cfg, err := config.Load(name, args, getenv)
    if err != nil {
        fmt.Fprintln(os.Stderr, err)
        return 2
    }
    sess := app.NewSession(uuid.NewString(), app.SessionOptions{
        Mode:              cfg.DefaultMode,
        Difficulty:        cfg.DefaultDifficulty,
        DefaultDifficulty: cfg.DefaultDifficulty,
        Delay:             cfg.ComputerDelay,
        Policy:            cfg.Policy(),
    })
    defer sess.Close()
    c := &cli{in: in, out: termenv.NewOutput(out), sess: sess}
    if err := c.run(context.Background()); err != nil {
        fmt.Fprintln(os.Stderr, err)
        return 1
    }
    return 0
}

func (c *cli) printf(format string, args ...any) {
    _, _ = fmt.Fprintf(c.out, format, args...)
}

// cellStyle colours a cell; winning cells are shown reversed.
func (c *cli) cellStyle(i int, cell domain.Cell, winning bool) string {
    var s termenv.Style
    switch cell {
    case domain.X:
        s = c.out.String("X").Foreground(c.out.Color("#ff5f5f")).Bold()
    case domain.O:
        s = c.out.String("O").Foreground(c.out.Color("#5fafff")).Bold()
    default:
        s = c.out.String(strconv.Itoa(i)).Faint()
    }
    if winning {
        s = s.Reverse()
    }
    return s.String()
}

func (c *cli) render(st app.Snapshot) string {
    winning := map[int]bool{}
    if st.Outcome.Status == domain.Win {
        for _, i := range st.Outcome.Line {
            winning[i] = true
        }
    }
    var b strings.Builder
    for row := 0; row < 3; row++ {
        if row > 0 {
            b.WriteString("---+---+---\n")
        }
        for col := 0; col < 3; col++ {
            i := row*3 + col
            if col > 0 {
                b.WriteString("|")
            }
            b.WriteString(" " + c.cellStyle(i, st.Board[i], winning[i]) + " ")
        }
        b.WriteString("\n")
    }
    status := st.StatusText()
    if st.Outcome.Decided() {
        status = c.out.String(status).Bold().String()
    }
    fmt.Fprintf(&b, "%s  [%s, %s, move %d/%d]\n", status, st.Mode, st.Difficulty, st.Move, len(st.History)-1)
    return b.String()
}

// computerTurn plays the computer's move when it is due and waits for it.
func (c *cli) computerTurn(ctx context.Context) error {
    st := c.sess.State()
    if st.Mode != app.PlayerVsComputer || st.Outcome.Decided() || st.CurrentPlayer != app.Computer {
        return nil
    }
    ch, err := c.sess.RequestComputerMove(ctx)
    if err != nil {
        return err
    }
    c.printf("%s\n", c.out.String("Computer is thinking...").Italic())
    res := <-ch
    if res.Err != nil && !errors.Is(res.Err, app.ErrStale) {
        return res.Err
    }
    return nil
}

// exec runs one command line. It reports false when the user quits.
func (c *cli) exec(ctx context.Context, line string) (bool, error) {
    fields := strings.Fields(line)
    if len(fields) == 0 {
        return true, nil
    }
    var err error
    switch cmd := fields[0]; cmd {
    case "q", "quit":
        return false, nil
    case "u", "undo":
        _, err = c.sess.Undo()
    case "r", "reset":
        c.sess.Reset()
    case "d", "difficulty":
        if len(fields) != 2 {
            return true, errors.New("usage: d <easy|medium|hard>")
        }
        var d ai.Difficulty
        if d, err = ai.ParseDifficulty(fields[1]); err == nil {
            err = c.sess.SetDifficulty(d)
        }
    case "h", "help", "?":
        c.printf("%s\n", help)
        return true, nil
    default:
        idx, convErr := strconv.Atoi(cmd)
        if convErr != nil {
            return true, fmt.Errorf("unknown command %q", cmd)
        }
        _, err = c.sess.ApplyHumanMove(idx)
    }
    if err != nil {
        return true, err
    }
    return true, c.computerTurn(ctx)
}

func (c *cli) run(ctx context.Context) error {
    c.printf("%s\n\n%s", help, c.render(c.sess.State()))
    scanner := bufio.NewScanner(c.in)
    for {
        c.printf("> ")
        if !scanner.Scan() {
            c.printf("\n")
            return scanner.Err()
        }
        more, err := c.exec(ctx, scanner.Text())
        if !more {
            return nil
        }
        if err != nil {
            c.printf("%s\n", c.out.String(err.Error()).Foreground(c.out.Color("#ff5f5f")))
            continue
        }
        c.printf("%s", c.render(c.sess.State()))
    }
}
