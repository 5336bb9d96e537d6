package tools

import (
	"strings"
	"unicode"
)

// Printable drops the characters of s that are not printable, like the CRLF ending a command.
func Printable[T ~string | ~[]byte](v T) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, string(v))
}
