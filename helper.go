package peerreview

import (
	"regexp"
)

var txHashPattern = regexp.MustCompile(`Transaction with hash "([^"]*)"`)

// ExtractTxHash retrieves the transaction hash embedded in a receipt lookup
// failure message of the form `Transaction with hash "<hash>" ...`.
// It returns an empty string when the message carries no such hash, or when
// the quoted hash itself is empty.
func ExtractTxHash(msg string) string {
	match := txHashPattern.FindStringSubmatch(msg)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ExtractTxHashFromError is ExtractTxHash applied to the string form of err.
func ExtractTxHashFromError(err error) string {
	if err == nil {
		return ""
	}
	return ExtractTxHash(err.Error())
}
