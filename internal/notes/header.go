package notes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Header keys every stored document carries.
const (
	HeaderID      = "id"
	HeaderVersion = "version"
	HeaderTitle   = "title"
	HeaderCreated = "created"
	HeaderUpdated = "updated"
)

const (
	headerStartMark = "<!--+++++++++++++-->"
	headerEndMark   = "<!----------------->"

	// The start mark is expected right after the fixed preamble.
	maxPreambleLines = 8
	maxHeaderLine    = 1 << 20
)

var headerPreamble = []string{
	"<!doctype html>",
	"<!-- PLEASE DO NOT EDIT THIS FILE -->",
	"<!-- All changes you've done here will be stashed on next sync -->",
}

var (
	headerLine = regexp.MustCompile(`^<!-- ([A-Za-z_][A-Za-z0-9_]*): (.*) -->$`)
	headerKey  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ErrCorruptedNote is matched by every header parsing failure.
var ErrCorruptedNote = errors.New("corrupted note")

// CorruptedNoteError describes why a stored document could not be read.
type CorruptedNoteError struct {
	Path   string
	Reason string
}

func (e *CorruptedNoteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corrupted note: %s", e.Reason)
	}
	return fmt.Sprintf("corrupted note %s: %s", e.Path, e.Reason)
}

func (e *CorruptedNoteError) Is(target error) bool {
	return target == ErrCorruptedNote
}

func corrupted(format string, args ...any) error {
	return &CorruptedNoteError{Reason: fmt.Sprintf(format, args...)}
}

// HeaderField is a single key/value pair of the document header.
type HeaderField struct {
	Key   string
	Value string
}

var headerEscaper = strings.NewReplacer(
	"&", "&amp;",
	">", "&gt;",
	"\n", "&#10;",
	"\r", "&#13;",
)

// WriteDocument writes the header followed by body.
func WriteDocument(w io.Writer, fields []HeaderField, body []byte) error {
	var buf bytes.Buffer
	for _, l := range headerPreamble {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	buf.WriteString(headerStartMark)
	buf.WriteByte('\n')
	for _, f := range fields {
		if !headerKey.MatchString(f.Key) {
			return fmt.Errorf("invalid header key %q", f.Key)
		}
		fmt.Fprintf(&buf, "<!-- %s: %s -->\n", f.Key, headerEscaper.Replace(f.Value))
	}
	buf.WriteString(headerEndMark)
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// HeaderFields returns the header of a note: the fixed keys first, then the
// extra backend keys in lexical order. Timestamps are rendered in loc.
func (n *Note) HeaderFields(loc *time.Location) []HeaderField {
	if loc == nil {
		loc = time.Local
	}
	fields := []HeaderField{
		{HeaderID, string(n.Key)},
		{HeaderVersion, n.Version},
		{HeaderTitle, n.Title},
	}
	if !n.Created.IsZero() {
		fields = append(fields, HeaderField{HeaderCreated, n.Created.In(loc).Format(time.RFC3339)})
	}
	if !n.Updated.IsZero() {
		fields = append(fields, HeaderField{HeaderUpdated, n.Updated.In(loc).Format(time.RFC3339)})
	}

	extra := make([]string, 0, len(n.Header))
	for k := range n.Header {
		switch k {
		case HeaderID, HeaderVersion, HeaderTitle, HeaderCreated, HeaderUpdated:
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		fields = append(fields, HeaderField{k, n.Header[k]})
	}
	return fields
}

// ParseHeader reads the header of a stored document. Only the header part
// of r is consumed.
func ParseHeader(r io.Reader) (map[string]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxHeaderLine)

	started := false
	vars := make(map[string]string)
	for n := 0; sc.Scan(); n++ {
		line := strings.TrimSuffix(sc.Text(), "\r")

		if !started {
			if line == headerStartMark {
				started = true
				continue
			}
			if n >= maxPreambleLines {
				break
			}
			continue
		}

		if line == headerEndMark {
			return vars, nil
		}
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			return nil, corrupted("unexpected header line %q", line)
		}
		vars[m[1]] = html.UnescapeString(m[2])
	}
	if err := sc.Err(); err != nil {
		return nil, corrupted("read header: %v", err)
	}

	if !started {
		return nil, corrupted("header start mark not found")
	}
	return nil, corrupted("header end mark not found")
}

// ReadHeaderFile parses the header of the document at path.
func ReadHeaderFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vars, err := ParseHeader(f)
	if err != nil {
		var ce *CorruptedNoteError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return vars, nil
}
