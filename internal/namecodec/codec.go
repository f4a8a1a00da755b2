// Package namecodec converts arbitrary note and folder titles into path
// segments that are safe for every common filesystem and for git, and back.
//
// The encoding is applied to a single path segment at a time. Never pass a
// full path: the separator would be escaped like any other character.
//
// Rules, in order:
//   - the escape character '_' is doubled;
//   - a leading and a trailing whitespace rune are escaped;
//   - reserved device names (CON, PRN, AUX, NUL, COM0-9, LPT0-9, optionally
//     followed by an extension) and names starting with '.' get a '_' prefix;
//   - every rune that is not a letter, an ASCII digit or one of "-_. []()"
//     is replaced with '_' followed by four lowercase hex digits per UTF-16
//     code unit.
package namecodec

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// EscapeChar starts every escape sequence and is doubled when literal.
	EscapeChar = '_'

	// MaxLen is the maximum length of an encoded segment, in runes.
	MaxLen = 250
)

var (
	// ErrEmpty is returned for empty input.
	ErrEmpty = errors.New("name cannot be empty")

	// ErrInvalidUTF8 is returned when the input is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("name is not valid UTF-8")

	// ErrTooLong is returned when the encoded name exceeds MaxLen.
	ErrTooLong = errors.New("encoded name length exceeds the limit of 250")
)

var reservedName = regexp.MustCompile(`(?i)^(CON|COM[0-9]|LPT[0-9]|PRN|AUX|NUL)(?:[.]|$)`)

// IsReserved reports whether name collides with a reserved device name.
func IsReserved(name string) bool {
	return reservedName.MatchString(name)
}

func allowed(r rune) bool {
	switch {
	case unicode.IsLetter(r):
		return true
	case r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_. []()", r)
}

const hexDigits = "0123456789abcdef"

func writeEscaped(b *strings.Builder, r rune) {
	for _, u := range utf16.Encode([]rune{r}) {
		b.WriteByte(EscapeChar)
		b.WriteByte(hexDigits[u>>12&0xf])
		b.WriteByte(hexDigits[u>>8&0xf])
		b.WriteByte(hexDigits[u>>4&0xf])
		b.WriteByte(hexDigits[u&0xf])
	}
}

// Encode returns the filesystem-safe form of raw.
func Encode(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmpty
	}
	if !utf8.ValidString(raw) {
		return "", ErrInvalidUTF8
	}

	s := strings.ReplaceAll(raw, string(EscapeChar), string([]rune{EscapeChar, EscapeChar}))

	runes := []rune(s)
	last := len(runes) - 1

	// Leading and trailing whitespace would be silently dropped by many tools.
	var b strings.Builder
	for i, r := range runes {
		if (i == 0 || i == last) && unicode.IsSpace(r) {
			writeEscaped(&b, r)
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	if IsReserved(s) || s[0] == '.' {
		s = string(EscapeChar) + s
	}

	b.Reset()
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
		} else {
			writeEscaped(&b, r)
		}
	}
	s = b.String()

	if utf8.RuneCountInString(s) > MaxLen {
		return "", ErrTooLong
	}
	return s, nil
}

// Decode returns the original name for a segment produced by Encode.
// Escape characters that do not form a valid sequence are kept as is, so
// foreign names decode to something reasonable instead of failing.
func Decode(seg string) (string, error) {
	if seg == "" {
		return "", ErrEmpty
	}

	// The '_' prefix is only ever added in front of '.' or a device name;
	// a doubled '_' or an escape sequence is followed by '_' or a hex digit.
	if len(seg) > 1 && seg[0] == EscapeChar && (seg[1] == '.' || IsReserved(seg[1:])) {
		seg = seg[1:]
	}

	var b strings.Builder
	i := 0
	for i < len(seg) {
		if seg[i] != EscapeChar {
			b.WriteByte(seg[i])
			i++
			continue
		}

		j := i
		for j < len(seg) && seg[j] == EscapeChar {
			j++
		}
		run := j - i
		for k := 0; k < run/2; k++ {
			b.WriteByte(EscapeChar)
		}
		i = j
		if run%2 == 0 {
			continue
		}

		// The last escape char of an odd run starts one or more code units.
		units, n := readUnits(seg[i-1:])
		if n == 0 {
			b.WriteByte(EscapeChar)
			continue
		}
		b.WriteString(string(utf16.Decode(units)))
		i += n - 1
	}
	return b.String(), nil
}

// readUnits parses consecutive "_xxxx" groups at the start of s and returns
// the code units together with the number of bytes consumed.
func readUnits(s string) ([]uint16, int) {
	var units []uint16
	n := 0
	for len(s) >= n+5 && s[n] == EscapeChar {
		u, ok := parseHex4(s[n+1 : n+5])
		if !ok {
			break
		}
		units = append(units, u)
		n += 5
	}
	return units, n
}

func parseHex4(s string) (uint16, bool) {
	var u uint16
	for i := 0; i < 4; i++ {
		d := strings.IndexByte(hexDigits, s[i])
		if d < 0 {
			return 0, false
		}
		u = u<<4 | uint16(d)
	}
	return u, true
}

// EncodePath encodes every segment of parts independently.
func EncodePath(parts []string) ([]string, error) {
	out := make([]string, len(parts))
	for i, p := range parts {
		enc, err := Encode(p)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// DecodePath decodes every segment of parts independently.
func DecodePath(parts []string) ([]string, error) {
	out := make([]string, len(parts))
	for i, p := range parts {
		dec, err := Decode(p)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// Fit encodes raw, dropping trailing runes until the result is at most limit
// runes long. Errors other than ErrTooLong are returned as is.
func Fit(raw string, limit int) (string, error) {
	if limit <= 0 || limit > MaxLen {
		limit = MaxLen
	}
	runes := []rune(raw)
	for n := len(runes); n > 0; n-- {
		enc, err := Encode(string(runes[:n]))
		if errors.Is(err, ErrTooLong) {
			continue
		}
		if err != nil {
			return "", err
		}
		if utf8.RuneCountInString(enc) <= limit {
			return enc, nil
		}
	}
	if len(runes) == 0 {
		return "", ErrEmpty
	}
	return "", ErrTooLong
}
