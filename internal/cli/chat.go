package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/aretw0/relay/pkg/domain"
	"golang.org/x/term"
)

// Chatter is the slice of Relay the chat loop drives.
type Chatter interface {
	NewThread(ctx context.Context) (string, error)
	SubmitTurn(ctx context.Context, threadID, message string) (relay.Answer, error)
	GetState(ctx context.Context, threadID string) (*domain.ConversationState, error)
}

// ChatOptions configures a chat session.
type ChatOptions struct {
	// ThreadID resumes an existing conversation. Empty starts a new one.
	ThreadID string
	In       io.Reader
	Out      io.Writer
	Render   tui.Renderer
	Quiet    bool
}

// Chat runs the interactive loop until EOF, "/exit" or cancellation.
// Turn failures are printed and the loop continues.
func Chat(ctx context.Context, r Chatter, opts ChatOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Render == nil {
		opts.Render = StdoutRenderer()
	}

	threadID := opts.ThreadID
	if threadID == "" {
		id, err := r.NewThread(ctx)
		if err != nil {
			return err
		}
		threadID = id
		if !opts.Quiet {
			printSystemMessage(opts.Out, "Thread '%s' active.", threadID)
		}
	} else {
		state, err := r.GetState(ctx, threadID)
		if err != nil {
			return err
		}
		if !opts.Quiet {
			printSystemMessage(opts.Out, "Resuming thread '%s' (%d messages).", threadID, len(state.Messages))
		}
	}

	scanner := bufio.NewScanner(NewInterruptibleReader(opts.In, ctx.Done()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if !opts.Quiet {
			fmt.Fprint(opts.Out, "> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !isInterrupted(err) {
				return err
			}
			if !opts.Quiet {
				fmt.Fprintln(opts.Out)
				printSystemMessage(opts.Out, "Thread '%s' saved.", threadID)
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			if !opts.Quiet {
				printSystemMessage(opts.Out, "Thread '%s' saved.", threadID)
			}
			return nil
		case "/thread":
			printSystemMessage(opts.Out, "%s", threadID)
			continue
		}

		answer, err := r.SubmitTurn(ctx, threadID, line)
		if err != nil {
			if isInterrupted(err) {
				return nil
			}
			printSystemMessage(opts.Out, "Error: %v", err)
			continue
		}
		out, err := tui.FormatAnswer(opts.Render, answer)
		if err != nil {
			return err
		}
		fmt.Fprint(opts.Out, out)
	}
}

// StdoutRenderer renders markdown when stdout is a terminal.
func StdoutRenderer() tui.Renderer {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return tui.NewRenderer(false, 0)
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = 0
	}
	return tui.NewRenderer(true, width)
}
