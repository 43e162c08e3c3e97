package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// maxLabelLen is the DNS wire limit for a single label.
const maxLabelLen = 255

var ErrInvalidName = errors.New("invalid name")

// nameProfile applies the non-transitional UTS-46 mapping ENS names are
// hashed under: case folding, width and compatibility mappings, NFC. ASCII
// outside LDH is allowed and joiners are left to emoji sequences.
var nameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
	idna.CheckHyphens(false),
	idna.CheckJoiners(false),
	idna.BidiRule(),
)

// NormalizeName maps a name to the form it is hashed under. Names with
// disallowed runes, whitespace or empty labels are rejected.
func NormalizeName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for _, label := range strings.Split(s, ".") {
		// Reserved for label extensions such as xn--; never decoded.
		if len(label) >= 4 && label[2] == '-' && label[3] == '-' {
			return "", fmt.Errorf("%w: label %q has an extension prefix", ErrInvalidName, label)
		}
	}
	mapped, err := nameProfile.ToUnicode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	for _, label := range strings.Split(mapped, ".") {
		if label == "" {
			return "", fmt.Errorf("%w: empty label in %q", ErrInvalidName, mapped)
		}
		if len(label) > maxLabelLen {
			return "", fmt.Errorf("%w: label longer than %d bytes", ErrInvalidName, maxLabelLen)
		}
		for _, r := range label {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return "", fmt.Errorf("%w: label %q contains whitespace", ErrInvalidName, label)
			}
		}
	}
	return mapped, nil
}

// IsName reports whether s is a resolvable name: it normalizes cleanly and
// its normalized form ends in suffix.
func IsName(s, suffix string) bool {
	if suffix == "" {
		suffix = DefaultNameSuffix
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	name, err := NormalizeName(s)
	if err != nil {
		return false
	}
	suffix = strings.ToLower(suffix)
	return strings.HasSuffix(name, suffix) && len(name) > len(suffix)
}
