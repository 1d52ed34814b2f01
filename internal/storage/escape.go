package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/starford/retronotes/internal/apperr"
)

// encodeCell escapes s so it reads back unchanged. Readers decode _xHHHH_
// sequences in shared strings, so an underscore that starts "_x" is written
// as _x005F_, and runes XML 1.0 cannot carry are written as _xHHHH_.
func encodeCell(s string) string {
	if !needsEncoding(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i, r := range s {
		switch {
		case r == '_' && i+1 < len(s) && s[i+1] == 'x':
			b.WriteString("_x005F_")
		case !xmlChar(r):
			fmt.Fprintf(&b, "_x%04X_", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsEncoding(s string) bool {
	if strings.Contains(s, "_x") {
		return true
	}
	for _, r := range s {
		if !xmlChar(r) {
			return true
		}
	}
	return false
}

// xmlChar reports whether r may appear in an XML 1.0 document.
// Invalid UTF-8 is left alone; it decodes to utf8.RuneError, which is legal.
func xmlChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r < 0x20:
		return false
	case r == 0xFFFE, r == 0xFFFF:
		return false
	}
	return true
}

// cellText encodes a text field and enforces the per-cell size limit, which
// the writer would otherwise apply by silently truncating.
func cellText(field, s string) (string, error) {
	enc := encodeCell(s)
	if n := utf8.RuneCountInString(enc); n > excelize.TotalCellChars {
		return "", fmt.Errorf("storage: %s is %d characters encoded, limit %d: %w",
			field, n, excelize.TotalCellChars, apperr.ErrTooLong)
	}
	return enc, nil
}
