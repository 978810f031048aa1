package wire

// Message is an inbound message as delivered to the registry.
//
// Reference is the delivery layer's ordering token. It is nil when the
// transport did not assign one; the engine stamps it before routing.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Action    string         `json:"action"`
	From      string         `json:"from"`
	Reference *int64         `json:"reference,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"` // Unix milliseconds
	Tags      map[string]any `json:"tags,omitempty"`
	Data      *string        `json:"data,omitempty"`
}

// Tag returns the named tag when it is present and holds a string.
// A tag carrying any other type reports ok=false.
func (m Message) Tag(name string) (string, bool) {
	raw, exists := m.Tags[name]
	if !exists {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// HasTag reports whether the named tag is present, whatever its type.
func (m Message) HasTag(name string) bool {
	_, exists := m.Tags[name]
	return exists
}

// WithReference returns a copy of m carrying the given ordering token.
func (m Message) WithReference(ref int64) Message {
	m.Reference = &ref
	return m
}

// Notice is an outbound message produced by the registry.
type Notice struct {
	ID     string            `json:"id,omitempty"`
	Target string            `json:"target"`
	Action string            `json:"action"`
	Tags   map[string]string `json:"tags,omitempty"`
	Data   string            `json:"data,omitempty"`
}

// IsPatch reports whether the notice is addressed to the ACL consistency layer.
func (n Notice) IsPatch() bool {
	return n.Tags[TagDevice] == PatchDevice
}

// ErrorCode returns the failure code carried by the notice, or "".
func (n Notice) ErrorCode() string {
	return n.Tags[TagError]
}

// Ptr returns a pointer to v. Convenience for building messages in tests
// and adapters.
func Ptr[T any](v T) *T {
	return &v
}
