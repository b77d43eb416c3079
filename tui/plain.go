package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/history"
	"github.com/nachoal/mini-agent-go/tui/styles"
)

// ErrInterrupted is returned when the user interrupts an idle REPL
var ErrInterrupted = errors.New("interrupted")

// Options configure a REPL
type Options struct {
	Provider string
	Model    string
	Theme    string
	History  *history.Manager

	// Interrupts delivers Ctrl-C in plain mode; the bubbletea REPL reads
	// keys itself
	Interrupts <-chan os.Signal
}

// Plain is a line-oriented REPL for terminals without cursor control and
// for piped input
type Plain struct {
	session    *agent.Session
	commands   *Commands
	renderer   *Renderer
	in         io.Reader
	out        io.Writer
	interrupts <-chan os.Signal
	opts       Options
}

// NewPlain creates a plain REPL
func NewPlain(session *agent.Session, in io.Reader, out io.Writer, opts Options) *Plain {
	return &Plain{
		session:    session,
		commands:   NewCommands(session, opts.History),
		renderer:   NewRenderer(styles.GetTheme(opts.Theme), true),
		in:         in,
		out:        out,
		interrupts: opts.Interrupts,
		opts:       opts,
	}
}

// Run reads lines until EOF, /exit or an idle interrupt
func (p *Plain) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(p.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	p.println(p.renderer.Banner(p.opts.Provider, p.opts.Model, p.session.Workspace().Root(),
		p.session.Registry().Len(), p.session.Skills().Len()))

	for {
		fmt.Fprint(p.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.interrupts:
			fmt.Fprintln(p.out)
			return ErrInterrupted
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(p.out)
				return nil
			}
			line = l
		}

		if IsCommand(line) {
			res := p.commands.Run(line)
			if res.quit {
				return nil
			}
			p.printResult(res)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := p.turn(ctx, line); err != nil {
			p.println(p.renderer.Error(err.Error()))
		}
	}
}

func (p *Plain) turn(ctx context.Context, text string) error {
	stream, err := p.session.Prompt(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	events := stream.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				stream.Wait()
				return nil
			}
			if out := p.renderer.Event(ev); out != "" {
				p.println(out)
			}
		case <-p.interrupts:
			p.session.Cancel()
			p.println(p.renderer.Notice("Cancelling..."))
		}
	}
}

func (p *Plain) printResult(res commandResult) {
	if res.err != nil {
		p.println(p.renderer.Error(res.err.Error()))
		return
	}
	if res.output != "" {
		p.println(p.renderer.Command(res.output))
	}
}

func (p *Plain) println(s string) {
	fmt.Fprintln(p.out, s)
}
