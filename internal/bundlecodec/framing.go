package bundlecodec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/keychainpgp/core/internal/keychainerr"
)

// bundleVersion is the framing format version. Framing changes bump
// this; the KDF/AEAD envelope carries its own independent version
// byte (envelope.go).
const bundleVersion byte = 1

// EntryKind tags whether a framed entry carries only a public
// certificate or a certificate plus its secret material, per spec.md
// §4.6's "entry-kind tag" requirement.
type EntryKind byte

const (
	EntryPublicOnly EntryKind = 0
	EntryWithSecret EntryKind = 1
)

// Entry is one certificate (and optionally its secret material)
// carried inside a bundle.
type Entry struct {
	Fingerprint      string
	Kind             EntryKind
	CertificateBytes []byte
	SecretKeyArmored []byte // empty unless Kind == EntryWithSecret
}

// encodeEntries serializes entries into the bundle plaintext: a
// version byte followed by length-prefixed records, explicit and
// parseable without out-of-band knowledge (spec.md §4.6).
func encodeEntries(entries []Entry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(bundleVersion)
	for _, e := range entries {
		buf.WriteByte(byte(e.Kind))
		writeUint16Prefixed(&buf, []byte(e.Fingerprint))
		writeUint32Prefixed(&buf, e.CertificateBytes)
		writeUint32Prefixed(&buf, e.SecretKeyArmored)
	}
	return buf.Bytes()
}

func writeUint16Prefixed(buf *bytes.Buffer, data []byte) {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
}

func writeUint32Prefixed(buf *bytes.Buffer, data []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf.Write(lenBytes[:])
	buf.Write(data)
}

// decodeEntries parses the bundle plaintext produced by encodeEntries.
func decodeEntries(data []byte) ([]Entry, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "bundle plaintext is empty")
	}
	if version != bundleVersion {
		return nil, keychainerr.Newf(keychainerr.UnsupportedVersion, "unsupported bundle framing version %d", version)
	}

	var entries []Entry
	for r.Len() > 0 {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, keychainerr.New(keychainerr.TruncatedBundle, "bundle ended mid-entry")
		}
		kind := EntryKind(kindByte)
		if kind != EntryPublicOnly && kind != EntryWithSecret {
			return nil, keychainerr.Newf(keychainerr.CorruptFraming, "unrecognized entry kind %d", kindByte)
		}

		fp, err := readUint16Prefixed(r)
		if err != nil {
			return nil, err
		}
		cert, err := readUint32Prefixed(r)
		if err != nil {
			return nil, err
		}
		secret, err := readUint32Prefixed(r)
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{
			Fingerprint:      string(fp),
			Kind:             kind,
			CertificateBytes: cert,
			SecretKeyArmored: secret,
		})
	}

	return entries, nil
}

func readUint16Prefixed(r *bytes.Reader) ([]byte, error) {
	var lenBytes [2]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "bundle ended reading a length prefix")
	}
	n := binary.BigEndian.Uint16(lenBytes[:])
	return readExactly(r, int(n))
}

func readUint32Prefixed(r *bytes.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "bundle ended reading a length prefix")
	}
	n := binary.BigEndian.Uint32(lenBytes[:])
	if n > uint32(r.Len()) {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "declared entry length exceeds remaining bundle bytes")
	}
	return readExactly(r, int(n))
}

func readExactly(r *bytes.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "bundle ended before a declared field was complete")
	}
	return buf, nil
}
