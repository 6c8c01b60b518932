package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrDecode is wrapped by every error returned from Decode.
var ErrDecode = errors.New("invalid command")

// Decode parses one datagram payload into a Command.
// The buffer either yields exactly one well-formed Command or an error
// wrapping ErrDecode; partial values are never returned. Field names are
// matched exactly and each may appear once.
func Decode(b []byte) (Command, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Command{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if !utf8.Valid(b) {
		return Command{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}

	fields, err := readObject(b)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	cmd, err := commandFromFields(fields)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return cmd, nil
}

// readObject splits a single top-level JSON object into its raw members,
// keeping keys byte-exact.
func readObject(b []byte) (map[string]json.RawMessage, error) {
	decoder := json.NewDecoder(bytes.NewReader(b))

	tok, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}

	fields := make(map[string]json.RawMessage)
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name")
		}
		if _, dup := fields[name]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %v", name, err)
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("field %q is null", name)
		}
		fields[name] = raw
	}
	if _, err := decoder.Token(); err != nil {
		return nil, err
	}

	// One object per datagram
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after command")
	}
	return fields, nil
}

// commandFromFields fills a Command, rejecting fields that are unknown or
// belong to another command type.
func commandFromFields(fields map[string]json.RawMessage) (Command, error) {
	var cmd Command
	raw, ok := fields["type"]
	if !ok {
		return Command{}, fmt.Errorf("missing required field: type")
	}
	if err := decodeString(raw, (*string)(&cmd.Type)); err != nil {
		return Command{}, fmt.Errorf("field \"type\": %v", err)
	}
	if !cmd.Type.Valid() {
		return Command{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}

	for name, raw := range fields {
		var err error
		switch name {
		case "type":
			continue
		case "dx", "dy":
			if !cmd.Type.usesDelta() {
				return Command{}, fmt.Errorf("%s: %s not allowed", cmd.Type, name)
			}
			if name == "dx" {
				err = json.Unmarshal(raw, &cmd.DX)
			} else {
				err = json.Unmarshal(raw, &cmd.DY)
			}
		case "button":
			if !cmd.Type.usesButton() {
				return Command{}, fmt.Errorf("%s: button not allowed", cmd.Type)
			}
			err = decodeString(raw, (*string)(&cmd.Button))
		case "key":
			if !cmd.Type.usesKey() {
				return Command{}, fmt.Errorf("%s: key not allowed", cmd.Type)
			}
			err = decodeString(raw, &cmd.Key)
		case "text":
			if cmd.Type != TypeText {
				return Command{}, fmt.Errorf("%s: text not allowed", cmd.Type)
			}
			err = decodeString(raw, &cmd.Text)
		default:
			return Command{}, fmt.Errorf("unknown field %q", name)
		}
		if err != nil {
			return Command{}, fmt.Errorf("field %q: %v", name, err)
		}
	}
	return cmd, nil
}

// decodeString unmarshals a JSON string. encoding/json turns lone
// surrogate escapes into U+FFFD; those are rejected unless the payload
// spelled U+FFFD itself.
func decodeString(raw json.RawMessage, dst *string) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if strings.ContainsRune(s, utf8.RuneError) &&
		strings.Count(s, string(utf8.RuneError)) > literalReplacementChars(raw) {
		return fmt.Errorf("invalid unicode escape")
	}
	*dst = s
	return nil
}

// literalReplacementChars counts U+FFFD written directly or as \ufffd.
func literalReplacementChars(raw json.RawMessage) int {
	return strings.Count(string(raw), string(utf8.RuneError)) +
		strings.Count(strings.ToLower(string(raw)), `\ufffd`)
}

// Encode serializes a Command for the wire. Invalid commands are refused so
// that everything Encode produces is accepted by Decode.
func Encode(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return b, nil
}

// Validate checks required fields and rejects fields that belong to a
// different command type.
func (c Command) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("missing required field: type")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown command type %q", c.Type)
	}

	if !c.Type.usesDelta() && (c.DX != 0 || c.DY != 0) {
		return fmt.Errorf("%s: dx/dy not allowed", c.Type)
	}
	if c.Type.usesButton() {
		if c.Button == "" {
			return fmt.Errorf("%s: missing required field: button", c.Type)
		}
		if !c.Button.Valid() {
			return fmt.Errorf("%s: unknown button %q", c.Type, c.Button)
		}
	} else if c.Button != "" {
		return fmt.Errorf("%s: button not allowed", c.Type)
	}
	if c.Type.usesKey() {
		if c.Key == "" {
			return fmt.Errorf("%s: missing required field: key", c.Type)
		}
	} else if c.Key != "" {
		return fmt.Errorf("%s: key not allowed", c.Type)
	}
	if c.Type == TypeText {
		if c.Text == "" {
			return fmt.Errorf("text: missing required field: text")
		}
	} else if c.Text != "" {
		return fmt.Errorf("%s: text not allowed", c.Type)
	}
	return nil
}
