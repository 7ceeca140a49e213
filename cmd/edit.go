package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andresmejia3/lotannot/internal/canvas"
	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
)

// editor replays a line-oriented event script against a lot store through
// the canvas state machine. Each line is one event:
//
//	tool draw|none      zoom <z>           image <path>
//	move <x> <y>        down <x> <y>       up <x> <y>
//	drag <x1> <y1> <x2> <y2>               id <lot-id>
//	esc                 delete             crop <lot-id> on|off
//	label <lot-id> free|busy|-             list
//	save                saveas <path>      load <path>       reset
//
// Blank lines and lines starting with # are ignored.
type editor struct {
	store  *lots.Store
	canvas *canvas.Canvas
	out    io.Writer

	// ids queued by "id" lines answer the next lot id prompt
	ids []string
	// ask is the fallback lot id prompt; nil dismisses the prompt
	ask func(rect geometry.Rect) (string, bool)
	// resolve decides what happens to unsaved edits before load and reset
	resolve lots.Resolver
}

func newEditor(store *lots.Store, out io.Writer, resolve lots.Resolver) *editor {
	e := &editor{store: store, out: out, resolve: resolve}
	e.canvas = canvas.New(store, canvas.PromptFunc(e.promptID))
	return e
}

func (e *editor) close() { e.canvas.Close() }

func (e *editor) promptID(rect geometry.Rect) (string, bool) {
	if len(e.ids) > 0 {
		id := e.ids[0]
		e.ids = e.ids[1:]
		return id, true
	}
	if e.ask != nil {
		return e.ask(rect)
	}
	return "", false
}

// run executes every line of script. Validation rejections are reported and
// skipped; I/O errors stop the script.
func (e *editor) run(script io.Reader) error {
	sc := bufio.NewScanner(script)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		err := e.exec(strings.Fields(text))
		switch {
		case err == nil:
		case isRejection(err):
			fmt.Fprintf(e.out, "⚠️  line %d: %s: %v\n", line, text, err)
		default:
			return fmt.Errorf("line %d: %s: %w", line, text, err)
		}
	}
	return sc.Err()
}

var errSyntax = errors.New("syntax error")

// isRejection reports errors that leave the store unchanged and do not end the script.
func isRejection(err error) bool {
	for _, r := range []error{
		errSyntax, lots.ErrDuplicateID, lots.ErrEmptyID, lots.ErrBadID, lots.ErrNotConvex,
		lots.ErrIndexOutOfRange, lots.ErrUnknownLabel, lots.ErrNoPath, lots.ErrLoadAborted, lots.ErrUnsavedChanges, canvas.ErrBadZoom,
	} {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

func (e *editor) exec(f []string) error {
	cmd, args := f[0], f[1:]
	switch cmd {
	case "tool":
		if len(args) != 1 {
			return errSyntax
		}
		switch args[0] {
		case "draw":
			e.canvas.SetTool(canvas.ToolDraw)
		case "none":
			e.canvas.SetTool(canvas.ToolNone)
		default:
			return fmt.Errorf("%w: unknown tool %q", errSyntax, args[0])
		}
	case "zoom":
		z, err := floats(args, 1)
		if err != nil {
			return err
		}
		return e.canvas.SetZoom(z[0])
	case "move", "down", "up":
		v, err := floats(args, 2)
		if err != nil {
			return err
		}
		p := geometry.Point{X: v[0], Y: v[1]}
		switch cmd {
		case "move":
			e.canvas.PointerMove(p)
		case "down":
			// A real pointer hovers before it presses.
			e.canvas.PointerMove(p)
			e.canvas.PointerDown(p)
		case "up":
			e.canvas.PointerMove(p)
			return e.canvas.PointerUp(p)
		}
	case "drag":
		v, err := floats(args, 4)
		if err != nil {
			return err
		}
		from, to := geometry.Point{X: v[0], Y: v[1]}, geometry.Point{X: v[2], Y: v[3]}
		e.canvas.PointerMove(from)
		e.canvas.PointerDown(from)
		e.canvas.PointerMove(to)
		return e.canvas.PointerUp(to)
	case "id":
		if len(args) != 1 {
			return errSyntax
		}
		e.ids = append(e.ids, args[0])
	case "esc":
		e.canvas.KeyEscape()
	case "delete":
		return e.canvas.KeyDelete()
	case "crop":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return errSyntax
		}
		li, err := e.index(args[0])
		if err != nil {
			return err
		}
		return e.store.SetCropFlag(li, args[1] == "on")
	case "label":
		if len(args) != 2 {
			return errSyntax
		}
		li, err := e.index(args[0])
		if err != nil {
			return err
		}
		label := args[1]
		if label == "-" {
			label = ""
		}
		return e.store.SetLabel(li, label)
	case "image":
		if len(args) != 1 {
			return errSyntax
		}
		e.store.SetImagePath(args[0])
	case "list":
		printLots(e.out, e.store.Lots())
	case "save":
		if err := e.store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "💾 Saved %s\n", e.store.Path())
	case "saveas":
		if len(args) != 1 {
			return errSyntax
		}
		if err := e.store.SaveAs(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "💾 Saved %s\n", args[0])
	case "load":
		if len(args) != 1 {
			return errSyntax
		}
		return e.store.Load(args[0], e.resolve)
	case "reset":
		return e.store.Reset(e.resolve)
	default:
		return fmt.Errorf("%w: unknown event %q", errSyntax, cmd)
	}
	return nil
}

func (e *editor) index(id string) (int, error) {
	li, ok := e.store.Index(id)
	if !ok {
		return 0, fmt.Errorf("%w: no lot %q", lots.ErrIndexOutOfRange, id)
	}
	return li, nil
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: want %d numbers, got %d", errSyntax, n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errSyntax, a)
		}
		out[i] = v
	}
	return out, nil
}

// resolverFor maps the --on-unsaved policy onto a lots.Resolver. "ask"
// prompts on r.
func resolverFor(policy string, r *bufio.Reader, path func() string) (lots.Resolver, error) {
	switch policy {
	case "save":
		return func() lots.Decision { return lots.DecisionSave }, nil
	case "discard":
		return func() lots.Decision { return lots.DecisionDiscard }, nil
	case "abort":
		return func() lots.Decision { return lots.DecisionAbort }, nil
	case "ask":
		return func() lots.Decision {
			if confirm(r, fmt.Sprintf("⚠️  Save unsaved changes to %s?", path())) {
				return lots.DecisionSave
			}
			if confirm(r, "⚠️  Discard unsaved changes?") {
				return lots.DecisionDiscard
			}
			return lots.DecisionAbort
		}, nil
	default:
		return nil, fmt.Errorf("unknown unsaved-changes policy %q (use ask, save, discard or abort)", policy)
	}
}
