package bundlecodec

import (
	"crypto/rand"
	"regexp"
	"strings"

	"github.com/keychainpgp/core/internal/keychainerr"
)

// passphraseGroups and passphraseDigitsPerGroup fix the transfer
// passphrase shape at nine groups of four digits (spec.md §3/§4.6),
// generalizing the six-group scheme the original implementation used.
const (
	passphraseGroups         = 9
	passphraseDigitsPerGroup = 4
)

var passphrasePattern = regexp.MustCompile(`^\d{4}(-\d{4}){8}$`)

// GeneratePassphrase produces a transfer passphrase of shape
// \d{4}(-\d{4}){8}. Every digit is drawn uniformly over 0-9 by
// rejection sampling a single random byte, never by taking a modulus
// of a wider random value, so no digit is favored (spec.md §8
// invariant #8).
func GeneratePassphrase() (string, error) {
	groups := make([]string, passphraseGroups)
	for i := range groups {
		digits := make([]byte, passphraseDigitsPerGroup)
		for j := range digits {
			d, err := randomDigit()
			if err != nil {
				return "", keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to generate transfer passphrase", err)
			}
			digits[j] = '0' + d
		}
		groups[i] = string(digits)
	}
	return strings.Join(groups, "-"), nil
}

// randomDigit rejection-samples a byte into the [0,9] range. Values
// 250-255 are discarded because 256 is not a multiple of 10; without
// the rejection step, digits 0-5 would occur more often than 6-9.
func randomDigit() (byte, error) {
	const rejectionCeiling = 250 // largest multiple of 10 that fits in a byte
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if b[0] < rejectionCeiling {
			return b[0] % 10, nil
		}
	}
}

// ValidatePassphraseShape reports whether s has the exact nine-group,
// four-digit, hyphen-separated shape GeneratePassphrase produces.
func ValidatePassphraseShape(s string) bool {
	return passphrasePattern.MatchString(s)
}
