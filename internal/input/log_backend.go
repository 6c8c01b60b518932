package input

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/pointzerver/internal/protocol"
)

// LogBackend records actions instead of injecting them. It is the default
// on headless hosts and in tests.
type LogBackend struct {
	logger *slog.Logger
}

func NewLogBackend(logger *slog.Logger) *LogBackend {
	return &LogBackend{logger: logger}
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) Move(ctx context.Context, dx, dy int) error {
	b.logger.DebugContext(ctx, "inject move", "dx", dx, "dy", dy)
	return nil
}

func (b *LogBackend) Scroll(ctx context.Context, dx, dy int) error {
	b.logger.DebugContext(ctx, "inject scroll", "dx", dx, "dy", dy)
	return nil
}

func (b *LogBackend) Button(ctx context.Context, btn protocol.Button, pressed bool) error {
	b.logger.DebugContext(ctx, "inject button", "button", btn, "pressed", pressed)
	return nil
}

func (b *LogBackend) Key(ctx context.Context, key string, pressed bool) error {
	b.logger.DebugContext(ctx, "inject key", "key", key, "pressed", pressed)
	return nil
}

func (b *LogBackend) Type(ctx context.Context, text string) error {
	b.logger.DebugContext(ctx, "inject text", "chars", len([]rune(text)))
	return nil
}
