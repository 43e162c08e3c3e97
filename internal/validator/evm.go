package validator

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidIdentifier reports whether s is a canonical EVM account address.
// Single-case hex bodies carry no checksum; mixed case must match EIP-55.
func IsValidIdentifier(s string) bool {
	if !addressPattern.MatchString(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}

// Checksum returns the EIP-55 form of a valid identifier.
func Checksum(s string) (string, bool) {
	if !IsValidIdentifier(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}
