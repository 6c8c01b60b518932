package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/pointzerver/internal/protocol"
)

// ErrUnsupported is returned by a backend that cannot perform an action.
var ErrUnsupported = errors.New("input action not supported by backend")

// Backend injects input events into the local session.
type Backend interface {
	Move(ctx context.Context, dx, dy int) error
	Scroll(ctx context.Context, dx, dy int) error
	Button(ctx context.Context, b protocol.Button, pressed bool) error
	Key(ctx context.Context, key string, pressed bool) error
	Type(ctx context.Context, text string) error
	Name() string
}

// NewBackend builds the named backend: "log" or "xdotool".
func NewBackend(name, xdotoolPath string, logger *slog.Logger) (Backend, error) {
	switch name {
	case "", "log":
		return NewLogBackend(logger), nil
	case "xdotool":
		return NewXdotoolBackend(xdotoolPath)
	default:
		return nil, fmt.Errorf("unknown input backend %q", name)
	}
}
