package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/aclreg/internal/registry"
)

// Magic prefixes every snapshot file.
const Magic = "ACLRSNAP"

// FormatVersion is the current layout version.
const FormatVersion byte = 1

// maxDecodedSize bounds decompression of untrusted input.
const maxDecodedSize = 1 << 30

var (
	// ErrBadMagic is returned for input that is not a snapshot.
	ErrBadMagic = errors.New("snapshot: bad magic")
	// ErrUnsupportedVersion is returned for a format this build cannot read.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported format version")
	// ErrHashMismatch is returned when the decoded state does not match the
	// hash recorded at export.
	ErrHashMismatch = errors.New("snapshot: state hash mismatch")
)

// Document is the CBOR payload of a snapshot.
type Document struct {
	Hash     string                   `cbor:"hash"`
	LastSeq  int64                    `cbor:"last_seq"`
	Entities []entityDoc              `cbor:"entities"`
	Versions []registry.VersionRecord `cbor:"versions"`
}

// entityDoc mirrors registry.EntityRecord with explicit CBOR keys.
type entityDoc struct {
	EntityID     string   `cbor:"id"`
	Owner        *string  `cbor:"owner"`
	Controllers  []string `cbor:"controllers"`
	LastSequence *int64   `cbor:"last_sequence"`
	RegisteredAt int64    `cbor:"registered_at"`
}

// State converts the document back into registry state.
func (d Document) State() registry.State {
	s := registry.State{
		Entities: make([]registry.EntityRecord, len(d.Entities)),
		Versions: d.Versions,
	}
	for i, e := range d.Entities {
		s.Entities[i] = registry.EntityRecord{
			EntityID:     e.EntityID,
			Owner:        e.Owner,
			Controllers:  e.Controllers,
			LastSequence: e.LastSequence,
			RegisteredAt: e.RegisteredAt,
		}
	}
	if s.Versions == nil {
		s.Versions = []registry.VersionRecord{}
	}
	return s
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serializes state. lastSeq records the log position the state
// reflects so an importer can report it.
func Encode(state registry.State, lastSeq int64) ([]byte, error) {
	norm, err := normalize(state)
	if err != nil {
		return nil, err
	}
	hash, err := registry.HashState(norm)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	doc := Document{
		Hash:     hash,
		LastSeq:  lastSeq,
		Entities: make([]entityDoc, len(norm.Entities)),
		Versions: norm.Versions,
	}
	for i, e := range norm.Entities {
		doc.Entities[i] = entityDoc{
			EntityID:     e.EntityID,
			Owner:        e.Owner,
			Controllers:  e.Controllers,
			LastSequence: e.LastSequence,
			RegisteredAt: e.RegisteredAt,
		}
	}

	payload, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}

	out := make([]byte, 0, len(Magic)+1+len(payload)/2)
	out = append(out, Magic...)
	out = append(out, FormatVersion)
	return zstdEncoder.EncodeAll(payload, out), nil
}

// Decode parses and verifies a snapshot.
func Decode(data []byte) (Document, error) {
	if len(data) < len(Magic)+1 || !bytes.HasPrefix(data, []byte(Magic)) {
		return Document{}, ErrBadMagic
	}
	if v := data[len(Magic)]; v != FormatVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	payload, err := zstdDecoder.DecodeAll(data[len(Magic)+1:], nil)
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: decompress: %w", err)
	}

	var doc Document
	if err := decMode.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("snapshot: decode: %w", err)
	}

	hash, err := registry.HashState(doc.State())
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: %w", err)
	}
	if hash != doc.Hash {
		return Document{}, fmt.Errorf("%w: computed %s, recorded %s", ErrHashMismatch, hash, doc.Hash)
	}
	return doc, nil
}

// Write encodes state to w.
func Write(w io.Writer, state registry.State, lastSeq int64) error {
	data, err := Encode(state, lastSeq)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return nil
}

// Read decodes a snapshot from r.
func Read(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: read: %w", err)
	}
	return Decode(data)
}

// normalize validates state and puts it in registry order by passing it
// through a throwaway registry.
func normalize(state registry.State) (registry.State, error) {
	reg := registry.New(registry.Options{})
	if err := reg.Restore(state); err != nil {
		return registry.State{}, fmt.Errorf("snapshot: %w", err)
	}
	return reg.State(), nil
}
