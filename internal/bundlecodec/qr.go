package bundlecodec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/keychainpgp/core/internal/keychainerr"
)

const (
	qrPartPrefix = "KCPGP:"
	qrPassPrefix = "KCPGP-PASS:"

	// defaultChunkSize keeps generated QR modules scannable at typical
	// display/camera distances (spec.md §4.6).
	defaultChunkSize = 300
)

var qrPartPattern = regexp.MustCompile(`^KCPGP:([1-9]\d*)/([1-9]\d*):(.*)$`)

// BuildQRParts splits armored (a base64 envelope string) into ordered
// KCPGP: parts of at most chunkSize base64 characters each. chunkSize
// <= 0 selects defaultChunkSize.
func BuildQRParts(armored string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	var chunks []string
	for i := 0; i < len(armored); i += chunkSize {
		end := i + chunkSize
		if end > len(armored) {
			end = len(armored)
		}
		chunks = append(chunks, armored[i:end])
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	total := len(chunks)
	parts := make([]string, total)
	for i, chunk := range chunks {
		parts[i] = fmt.Sprintf("%s%d/%d:%s", qrPartPrefix, i+1, total, chunk)
	}
	return parts
}

// BuildPassphrasePart wraps a transfer passphrase in its distinct
// companion prefix, used only when the passphrase is deliberately
// transferred in-band (spec.md §4.6 default is out-of-band).
func BuildPassphrasePart(passphrase string) string {
	return qrPassPrefix + passphrase
}

// ParsePassphrasePart extracts a passphrase from a KCPGP-PASS: part.
func ParsePassphrasePart(part string) (string, bool) {
	if !strings.HasPrefix(part, qrPassPrefix) {
		return "", false
	}
	return strings.TrimPrefix(part, qrPassPrefix), true
}

// Reassembler accumulates QR parts delivered in arbitrary order and
// reports when the full envelope has been seen (spec.md §4.6). It is
// safe for concurrent use since parts of a single scan may arrive from
// independent camera-frame callbacks.
type Reassembler struct {
	mu    sync.Mutex
	total int
	parts map[int]string
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{parts: make(map[int]string)}
}

// AddPart ingests one KCPGP: part. Duplicate parts are idempotent.
// Receiving a part whose total disagrees with an earlier part aborts
// with InconsistentBundle. AddPart reports whether every part in
// [1, total] has now been seen.
func (r *Reassembler) AddPart(part string) (bool, error) {
	match := qrPartPattern.FindStringSubmatch(part)
	if match == nil {
		return false, keychainerr.Newf(keychainerr.CorruptFraming, "not a recognizable bundle part: %q", part)
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return false, keychainerr.Newf(keychainerr.CorruptFraming, "invalid part index in %q", part)
	}
	total, err := strconv.Atoi(match[2])
	if err != nil {
		return false, keychainerr.Newf(keychainerr.CorruptFraming, "invalid part total in %q", part)
	}
	if n > total {
		return false, keychainerr.Newf(keychainerr.CorruptFraming, "part index %d exceeds declared total %d", n, total)
	}
	data := match[3]

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.total != 0 && r.total != total {
		return false, keychainerr.Newf(keychainerr.InconsistentBundle, "part declares total %d, earlier parts declared %d", total, r.total)
	}
	r.total = total
	r.parts[n] = data

	return len(r.parts) == r.total, nil
}

// Assemble concatenates all seen parts in index order. It fails with
// TruncatedBundle if fewer than total parts have been added.
func (r *Reassembler) Assemble() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.total == 0 || len(r.parts) != r.total {
		return "", keychainerr.Newf(keychainerr.TruncatedBundle, "have %d of %d bundle parts", len(r.parts), r.total)
	}

	var buf strings.Builder
	for i := 1; i <= r.total; i++ {
		chunk, ok := r.parts[i]
		if !ok {
			return "", keychainerr.Newf(keychainerr.TruncatedBundle, "missing bundle part %d/%d", i, r.total)
		}
		buf.WriteString(chunk)
	}
	return buf.String(), nil
}
