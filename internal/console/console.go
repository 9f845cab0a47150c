package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/loqalabs/aacharya/internal/session"
)

// Session is the controller surface the console drives.
type Session interface {
	Snapshot() session.State
	SubmitText(ctx context.Context, text string)
	Submit(ctx context.Context)
	SetLanguage(ctx context.Context, code string) error
	StartSpeechCapture(ctx context.Context) error
	StopSpeechCapture()
	Speak(ctx context.Context, index int) error
	StopSpeaking()
	Alerts() []protocol.Alert
	Subscribe() (<-chan struct{}, func())
}

const helpText = `commands:
  <text>        ask a question
  /listen       speak a question (fills the draft)
  /stop         stop listening
  /send         send the current draft
  /speak N      read message N aloud
  /hush         stop reading aloud
  /alerts       show health alerts
  /lang CODE    switch language (en, hi, kn)
  /help         show this help
  /quit         leave
`

var errQuit = errors.New("quit")

// Console is a line-oriented front end for one session.
type Console struct {
	in      io.Reader
	out     io.Writer
	session Session

	mu       sync.Mutex
	rendered int
	draft    string

	// in-flight submits; their progress arrives through the update channel
	submits sync.WaitGroup
}

func New(in io.Reader, out io.Writer, s Session) *Console {
	return &Console{in: in, out: out, session: s}
}

// Run renders the conversation and processes commands until /quit, end of
// input or ctx cancellation. Questions are sent in the background so the
// console keeps accepting commands while a reply is pending; Run waits for
// them before returning.
func (c *Console) Run(ctx context.Context) error {
	updates, release := c.session.Subscribe()
	defer release()

	err := c.loop(ctx, updates)
	c.submits.Wait()
	c.render()
	return err
}

func (c *Console) loop(ctx context.Context, updates <-chan struct{}) error {
	c.printAlerts(c.session.Alerts())
	c.render()
	c.printf("%s\n", c.session.Snapshot().Placeholder)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			c.render()
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := c.handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
			c.render()
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.submit(func() { c.session.SubmitText(ctx, line) })
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		c.printf("%s", helpText)
	case "/listen":
		if err := c.session.StartSpeechCapture(ctx); err != nil {
			if errors.Is(err, session.ErrCaptureUnsupported) {
				c.printf("speech input is not available\n")
				return nil
			}
			c.printf("could not start listening\n")
			return nil
		}
		c.printf("listening...\n")
	case "/stop":
		c.session.StopSpeechCapture()
	case "/send":
		c.submit(func() { c.session.Submit(ctx) })
	case "/speak":
		n, err := strconv.Atoi(arg)
		if err != nil {
			c.printf("usage: /speak N\n")
			return nil
		}
		if err := c.session.Speak(ctx, n-1); err != nil {
			switch {
			case errors.Is(err, session.ErrNotAssistantMessage):
				c.printf("only assistant messages can be read aloud\n")
			default:
				c.printf("no message #%d\n", n)
			}
		}
	case "/hush":
		c.session.StopSpeaking()
	case "/alerts":
		c.printAlerts(c.session.Alerts())
	case "/lang":
		if err := c.session.SetLanguage(ctx, arg); err != nil {
			c.printf("unsupported language %q\n", arg)
			return nil
		}
		c.printf("%s\n", c.session.Snapshot().Placeholder)
	default:
		c.printf("unknown command %s, try /help\n", cmd)
	}
	return nil
}

func (c *Console) submit(fn func()) {
	c.submits.Add(1)
	go func() {
		defer c.submits.Done()
		fn()
	}()
}

// render prints messages appended since the last call and any new draft.
func (c *Console) render() {
	state := c.session.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := c.rendered; i < len(state.Messages); i++ {
		msg := state.Messages[i]
		who := "you"
		if msg.Role == session.RoleAssistant {
			who = "aacharya"
		}
		fmt.Fprintf(c.out, "#%d [%s] %s\n", i+1, who, msg.Text)
	}
	c.rendered = len(state.Messages)
	if state.PendingInput != c.draft {
		c.draft = state.PendingInput
		if c.draft != "" {
			fmt.Fprintf(c.out, "draft: %s (/send to ask)\n", c.draft)
		}
	}
}

func (c *Console) printAlerts(alerts []protocol.Alert) {
	if len(alerts) == 0 {
		return
	}
	c.printf("health alerts:\n")
	for _, a := range alerts {
		c.printf("  ! %s\n", a.Message)
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
