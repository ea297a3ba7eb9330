package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/overlay"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Renderer draws prompts as interactive terminal forms and toasts as
// coloured lines. It implements overlay.Renderer.
type Renderer struct {
	in   io.Reader
	out  io.Writer
	opts []tea.ProgramOption
	log  *zap.Logger

	mu      sync.Mutex
	program *tea.Program
}

// NewRenderer creates a renderer reading keys from in and drawing to out.
func NewRenderer(in io.Reader, out io.Writer, log *zap.Logger, opts ...tea.ProgramOption) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{in: in, out: out, opts: opts, log: log}
}

// Prompt starts an interactive form for c. The user's answer is passed to
// respond; a prompt closed from outside never responds.
func (r *Renderer) Prompt(c detector.Candidate, respond func(overlay.Decision)) {
	opts := append([]tea.ProgramOption{tea.WithInput(r.in), tea.WithOutput(r.out)}, r.opts...)
	p := tea.NewProgram(newPromptModel(c), opts...)

	r.mu.Lock()
	prev := r.program
	r.program = p
	r.mu.Unlock()
	if prev != nil {
		prev.Quit()
	}

	go func() {
		final, err := p.Run()

		r.mu.Lock()
		if r.program == p {
			r.program = nil
		}
		r.mu.Unlock()

		if err != nil {
			r.log.Warn("save prompt ended", zap.Error(err))
			return
		}
		if m, ok := final.(promptModel); ok && m.answered {
			respond(m.decision)
		}
	}()
}

// Close quits the running prompt, if any.
func (r *Renderer) Close() {
	r.mu.Lock()
	p := r.program
	r.program = nil
	r.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

// Toast prints t.
func (r *Renderer) Toast(t overlay.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, renderToast(t))
}

// ClearToast is a no-op: printed toasts scroll away with the terminal.
func (r *Renderer) ClearToast() {}

var _ overlay.Renderer = (*Renderer)(nil)
