package protocol

// Type discriminates the input action carried by a Command.
type Type string

const (
	TypeMove       Type = "move"
	TypeScroll     Type = "scroll"
	TypeClick      Type = "click"
	TypeButtonDown Type = "button_down"
	TypeButtonUp   Type = "button_up"
	TypeKeyDown    Type = "key_down"
	TypeKeyUp      Type = "key_up"
	TypeKeyTap     Type = "key_tap"
	TypeText       Type = "text"
)

// Button names a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Command is a single input action decoded from one datagram.
// Only the fields belonging to Type are populated.
type Command struct {
	Type   Type   `json:"type"`
	DX     int    `json:"dx,omitempty"`     // move, scroll
	DY     int    `json:"dy,omitempty"`     // move, scroll
	Button Button `json:"button,omitempty"` // click, button_down, button_up
	Key    string `json:"key,omitempty"`    // key_down, key_up, key_tap
	Text   string `json:"text,omitempty"`   // text
}

// Move returns a relative pointer move command.
func Move(dx, dy int) Command { return Command{Type: TypeMove, DX: dx, DY: dy} }

// Scroll returns a scroll command. Positive dy scrolls down.
func Scroll(dx, dy int) Command { return Command{Type: TypeScroll, DX: dx, DY: dy} }

// Click returns a press+release command for button.
func Click(b Button) Command { return Command{Type: TypeClick, Button: b} }

// KeyTap returns a press+release command for key.
func KeyTap(key string) Command { return Command{Type: TypeKeyTap, Key: key} }

// TypeString returns a command that types s.
func TypeString(s string) Command { return Command{Type: TypeText, Text: s} }

func (t Type) usesDelta() bool { return t == TypeMove || t == TypeScroll }

func (t Type) usesButton() bool {
	return t == TypeClick || t == TypeButtonDown || t == TypeButtonUp
}

func (t Type) usesKey() bool {
	return t == TypeKeyDown || t == TypeKeyUp || t == TypeKeyTap
}

// Valid reports whether t is a known command type.
func (t Type) Valid() bool {
	return t.usesDelta() || t.usesButton() || t.usesKey() || t == TypeText
}

// Valid reports whether b is a known button.
func (b Button) Valid() bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return true
	}
	return false
}
