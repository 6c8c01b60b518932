package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{"move", `{"type":"move","dx":5,"dy":3}`, Move(5, 3)},
		{"move negative", `{"type":"move","dx":-12,"dy":0}`, Move(-12, 0)},
		{"move no deltas", `{"type":"move"}`, Move(0, 0)},
		{"scroll", `{"type":"scroll","dy":-2}`, Scroll(0, -2)},
		{"click", `{"type":"click","button":"left"}`, Click(ButtonLeft)},
		{"button down", `{"type":"button_down","button":"right"}`, Command{Type: TypeButtonDown, Button: ButtonRight}},
		{"key tap", `{"type":"key_tap","key":"Return"}`, KeyTap("Return")},
		{"key up", `{"type":"key_up","key":"shift"}`, Command{Type: TypeKeyUp, Key: "shift"}},
		{"text", `{"type":"text","text":"héllo"}`, TypeString("héllo")},
		{"literal replacement char", `{"type":"text","text":"a\ufffdb"}`, TypeString("a\ufffdb")},
		{"surrounding whitespace", "  {\"type\":\"click\",\"button\":\"middle\"}\n", Click(ButtonMiddle)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte{}},
		{"whitespace", []byte("   ")},
		{"json string", []byte(`"not json"`)},
		{"bare text", []byte("not json")},
		{"null", []byte("null")},
		{"array", []byte(`[{"type":"move"}]`)},
		{"truncated", []byte(`{"type":"move","dx":5`)},
		{"missing type", []byte(`{"dx":5,"dy":3}`)},
		{"unknown type", []byte(`{"type":"teleport"}`)},
		{"unknown field", []byte(`{"type":"move","dx":1,"speed":9}`)},
		{"wrong field type", []byte(`{"type":"move","dx":"five"}`)},
		{"click without button", []byte(`{"type":"click"}`)},
		{"click unknown button", []byte(`{"type":"click","button":"thumb"}`)},
		{"move with button", []byte(`{"type":"move","dx":1,"button":"left"}`)},
		{"click with deltas", []byte(`{"type":"click","button":"left","dx":3}`)},
		{"key without key", []byte(`{"type":"key_down"}`)},
		{"text empty", []byte(`{"type":"text","text":""}`)},
		{"text with key", []byte(`{"type":"text","text":"a","key":"b"}`)},
		{"two objects", []byte(`{"type":"move"}{"type":"move"}`)},
		{"trailing garbage", []byte(`{"type":"move"} x`)},
		{"binary", []byte{0xff, 0x00, 0x7b, 0x13}},
		{"upper-case field names", []byte(`{"TYPE":"move","DX":5,"Dy":3}`)},
		{"mixed-case type field", []byte(`{"Type":"click","button":"left"}`)},
		{"invalid utf-8 in key", []byte("{\"type\":\"key_tap\",\"key\":\"a\xff\"}")},
		{"invalid utf-8 in text", []byte("{\"type\":\"text\",\"text\":\"\xc3\x28\"}")},
		{"lone surrogate escape", []byte(`{"type":"text","text":"\ud800"}`)},
		{"null delta", []byte(`{"type":"move","dx":null}`)},
		{"null type", []byte(`{"type":null}`)},
		{"duplicate type", []byte(`{"type":"click","type":"move","dx":1}`)},
		{"duplicate delta", []byte(`{"type":"move","dx":1,"dx":2}`)},
		{"empty key on move", []byte(`{"type":"move","dx":1,"key":""}`)},
		{"fractional delta", []byte(`{"type":"move","dx":1.5}`)},
		{"numeric type", []byte(`{"type":7}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "error should wrap ErrDecode: %v", err)
			assert.Equal(t, Command{}, got)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cmds := []Command{
		Move(5, 3),
		Move(0, 0),
		Scroll(-1, 4),
		Click(ButtonRight),
		{Type: TypeButtonUp, Button: ButtonLeft},
		{Type: TypeKeyDown, Key: "ctrl"},
		KeyTap("a"),
		TypeString(`quote " and \ backslash`),
	}

	for _, cmd := range cmds {
		b, err := Encode(cmd)
		require.NoError(t, err, "encode %+v", cmd)

		got, err := Decode(b)
		require.NoError(t, err, "decode %s", b)
		assert.Equal(t, cmd, got)
	}
}

func TestEncodeRefusesInvalid(t *testing.T) {
	_, err := Encode(Command{Type: TypeClick})
	assert.Error(t, err)

	_, err = Encode(Command{Type: "warp"})
	assert.Error(t, err)
}

func TestEncodeShape(t *testing.T) {
	b, err := Encode(Move(5, 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"move","dx":5,"dy":3}`, string(b))
}
