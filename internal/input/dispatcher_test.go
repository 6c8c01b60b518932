package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pointzerver/internal/protocol"
)

// recordingBackend captures every call as a short string.
type recordingBackend struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (r *recordingBackend) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.failOn != "" && call == r.failOn {
		return errors.New("injected failure")
	}
	return nil
}

func (r *recordingBackend) Name() string { return "recording" }

func (r *recordingBackend) Move(_ context.Context, dx, dy int) error {
	return r.record(fmt.Sprintf("move %d %d", dx, dy))
}

func (r *recordingBackend) Scroll(_ context.Context, dx, dy int) error {
	return r.record(fmt.Sprintf("scroll %d %d", dx, dy))
}

func (r *recordingBackend) Button(_ context.Context, b protocol.Button, pressed bool) error {
	return r.record(fmt.Sprintf("button %s %t", b, pressed))
}

func (r *recordingBackend) Key(_ context.Context, key string, pressed bool) error {
	return r.record(fmt.Sprintf("key %s %t", key, pressed))
}

func (r *recordingBackend) Type(_ context.Context, text string) error {
	return r.record("type " + text)
}

func TestDispatcherMapsCommands(t *testing.T) {
	tests := []struct {
		cmd  protocol.Command
		want []string
	}{
		{protocol.Move(5, 3), []string{"move 5 3"}},
		{protocol.Scroll(0, -2), []string{"scroll 0 -2"}},
		{protocol.Click(protocol.ButtonLeft), []string{"button left true", "button left false"}},
		{protocol.Command{Type: protocol.TypeButtonDown, Button: protocol.ButtonRight}, []string{"button right true"}},
		{protocol.Command{Type: protocol.TypeButtonUp, Button: protocol.ButtonRight}, []string{"button right false"}},
		{protocol.KeyTap("a"), []string{"key a true", "key a false"}},
		{protocol.Command{Type: protocol.TypeKeyDown, Key: "ctrl"}, []string{"key ctrl true"}},
		{protocol.Command{Type: protocol.TypeKeyUp, Key: "ctrl"}, []string{"key ctrl false"}},
		{protocol.TypeString("hi"), []string{"type hi"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd.Type), func(t *testing.T) {
			rb := &recordingBackend{}
			d := NewDispatcher(rb)
			require.NoError(t, d.Handle(context.Background(), tt.cmd))
			assert.Equal(t, tt.want, rb.calls)
		})
	}
}

func TestDispatcherClickStopsOnPressFailure(t *testing.T) {
	rb := &recordingBackend{failOn: "button left true"}
	d := NewDispatcher(rb)

	err := d.Handle(context.Background(), protocol.Click(protocol.ButtonLeft))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording click")
	assert.Equal(t, []string{"button left true"}, rb.calls)
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher(&recordingBackend{})
	err := d.Handle(context.Background(), protocol.Command{Type: "warp"})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestDispatcherCancelledContext(t *testing.T) {
	rb := &recordingBackend{}
	d := NewDispatcher(rb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Handle(ctx, protocol.Move(1, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rb.calls)
}

func TestDispatcherConcurrentKeepsPairsTogether(t *testing.T) {
	rb := &recordingBackend{}
	d := NewDispatcher(rb)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Handle(context.Background(), protocol.KeyTap("x"))
		}()
	}
	wg.Wait()

	require.Len(t, rb.calls, 40)
	for i := 0; i < len(rb.calls); i += 2 {
		assert.Equal(t, "key x true", rb.calls[i])
		assert.Equal(t, "key x false", rb.calls[i+1])
	}
}

func TestNewBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := NewBackend("log", "", logger)
	require.NoError(t, err)
	assert.Equal(t, "log", b.Name())

	_, err = NewBackend("uinput", "", logger)
	assert.Error(t, err)

	_, err = NewBackend("xdotool", "/nonexistent/xdotool-binary", logger)
	assert.Error(t, err)
}
