package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattjoyce/pointzerver/internal/protocol"
)

// maxStderrBytes caps the stderr kept for an xdotool failure.
const maxStderrBytes = 4 * 1024

// XdotoolBackend injects events into an X11 session by running xdotool.
type XdotoolBackend struct {
	path string
	run  func(ctx context.Context, path string, args ...string) error
}

// NewXdotoolBackend checks that the binary exists and returns a backend.
func NewXdotoolBackend(path string) (*XdotoolBackend, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("xdotool not found at %q: %w", path, err)
	}
	return &XdotoolBackend{path: resolved, run: runCommand}, nil
}

func (b *XdotoolBackend) Name() string { return "xdotool" }

func (b *XdotoolBackend) Move(ctx context.Context, dx, dy int) error {
	// "--" keeps negative offsets from being read as flags.
	return b.run(ctx, b.path, "mousemove_relative", "--", strconv.Itoa(dx), strconv.Itoa(dy))
}

// Scroll maps deltas to wheel clicks: 4/5 vertical, 6/7 horizontal.
func (b *XdotoolBackend) Scroll(ctx context.Context, dx, dy int) error {
	if dy != 0 {
		button, n := "5", dy
		if dy < 0 {
			button, n = "4", -dy
		}
		if err := b.run(ctx, b.path, "click", "--repeat", strconv.Itoa(n), button); err != nil {
			return err
		}
	}
	if dx != 0 {
		button, n := "7", dx
		if dx < 0 {
			button, n = "6", -dx
		}
		return b.run(ctx, b.path, "click", "--repeat", strconv.Itoa(n), button)
	}
	return nil
}

func (b *XdotoolBackend) Button(ctx context.Context, btn protocol.Button, pressed bool) error {
	var code string
	switch btn {
	case protocol.ButtonLeft:
		code = "1"
	case protocol.ButtonMiddle:
		code = "2"
	case protocol.ButtonRight:
		code = "3"
	default:
		return fmt.Errorf("%w: button %q", ErrUnsupported, btn)
	}
	action := "mouseup"
	if pressed {
		action = "mousedown"
	}
	return b.run(ctx, b.path, action, code)
}

func (b *XdotoolBackend) Key(ctx context.Context, key string, pressed bool) error {
	action := "keyup"
	if pressed {
		action = "keydown"
	}
	return b.run(ctx, b.path, action, "--", key)
}

func (b *XdotoolBackend) Type(ctx context.Context, text string) error {
	return b.run(ctx, b.path, "type", "--", text)
}

func runCommand(ctx context.Context, path string, args ...string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := stderr.String()
		if len(msg) > maxStderrBytes {
			msg = msg[:maxStderrBytes]
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("xdotool %s exited %d: %s", args[0], exitErr.ExitCode(), strings.TrimSpace(msg))
		}
		return fmt.Errorf("xdotool %s: %w", args[0], err)
	}
	return nil
}
