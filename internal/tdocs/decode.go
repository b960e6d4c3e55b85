package tdocs

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tdocflow/internal/logger"

	"golang.org/x/text/encoding/charmap"
)

// Decode turns raw report bytes into text. UTF-8 is tried first, then
// Windows-1252 (the code page of older Word/Excel exports). Input holding a
// byte Windows-1252 leaves undefined is neither, and is returned as-is.
func Decode(raw []byte, log *logger.Logger) string {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\ufeff")
	}
	if at := undefined1252(raw); at >= 0 {
		logger.OrNop(log).Warn("agenda report is neither utf-8 nor windows-1252, using raw bytes",
			"bytes", len(raw), "offset", at, "byte", fmt.Sprintf("%#x", raw[at]))
		return string(raw)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		logger.OrNop(log).Warn("agenda report is neither utf-8 nor windows-1252, using raw bytes", "bytes", len(raw), "error", err)
		return string(raw)
	}
	return string(out)
}

// undefined1252 returns the offset of the first byte with no Windows-1252
// mapping, or -1.
func undefined1252(raw []byte) int {
	for i, b := range raw {
		switch b {
		case 0x81, 0x8d, 0x8f, 0x90, 0x9d:
			return i
		}
	}
	return -1
}
