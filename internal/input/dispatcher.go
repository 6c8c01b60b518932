package input

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattjoyce/pointzerver/internal/protocol"
)

// Dispatcher applies commands to a Backend. It is safe for concurrent use;
// backend calls are serialised so press/release pairs never interleave.
type Dispatcher struct {
	mu      sync.Mutex
	backend Backend
}

// NewDispatcher returns a Dispatcher over backend.
func NewDispatcher(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend}
}

// Backend returns the name of the backend in use.
func (d *Dispatcher) Backend() string { return d.backend.Name() }

// Handle applies one command.
func (d *Dispatcher) Handle(ctx context.Context, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	switch cmd.Type {
	case protocol.TypeMove:
		err = d.backend.Move(ctx, cmd.DX, cmd.DY)
	case protocol.TypeScroll:
		err = d.backend.Scroll(ctx, cmd.DX, cmd.DY)
	case protocol.TypeButtonDown:
		err = d.backend.Button(ctx, cmd.Button, true)
	case protocol.TypeButtonUp:
		err = d.backend.Button(ctx, cmd.Button, false)
	case protocol.TypeClick:
		if err = d.backend.Button(ctx, cmd.Button, true); err == nil {
			err = d.backend.Button(ctx, cmd.Button, false)
		}
	case protocol.TypeKeyDown:
		err = d.backend.Key(ctx, cmd.Key, true)
	case protocol.TypeKeyUp:
		err = d.backend.Key(ctx, cmd.Key, false)
	case protocol.TypeKeyTap:
		if err = d.backend.Key(ctx, cmd.Key, true); err == nil {
			err = d.backend.Key(ctx, cmd.Key, false)
		}
	case protocol.TypeText:
		err = d.backend.Type(ctx, cmd.Text)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupported, cmd.Type)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", d.backend.Name(), cmd.Type, err)
	}
	return nil
}
