package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/aclreg/internal/wire"
)

// marshalMessage converts a message to JSON TEXT for the log.
// Canonical JSON is preferred; messages carrying values canonical JSON
// rejects (fractional numbers in tags) fall back to encoding/json, which
// still sorts map keys.
func marshalMessage(msg wire.Message) (string, error) {
	if data, err := wire.MarshalCanonical(msg); err == nil {
		return string(data), nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return string(data), nil
}

// marshalNotices converts notices to canonical JSON TEXT.
// A nil slice is stored as [] so the column is never NULL.
func marshalNotices(notices []wire.Notice) (string, error) {
	if notices == nil {
		notices = []wire.Notice{}
	}
	data, err := wire.MarshalCanonical(notices)
	if err != nil {
		return "", fmt.Errorf("marshal notices: %w", err)
	}
	return string(data), nil
}

// unmarshalMessage parses a logged message. Numbers are kept as json.Number
// so integer tags survive without float64 precision loss.
func unmarshalMessage(data string) (wire.Message, error) {
	var msg wire.Message
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return wire.Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}

func unmarshalNotices(data string) ([]wire.Notice, error) {
	notices := []wire.Notice{}
	if err := json.Unmarshal([]byte(data), &notices); err != nil {
		return nil, fmt.Errorf("unmarshal notices: %w", err)
	}
	return notices, nil
}
