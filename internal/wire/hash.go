package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainMessage = "aclreg/message/v1"
	DomainState   = "aclreg/state/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageID computes the content-addressed id of a message.
// The id field itself is excluded so that the result is stable whether or
// not the transport already assigned one.
func MessageID(m Message) (string, error) {
	m.ID = ""
	canonical, err := MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("MessageID: %w", err)
	}
	return HashWithDomain(DomainMessage, canonical), nil
}
