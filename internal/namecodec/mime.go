package namecodec

import (
	"mime"
	"sort"
	"strings"
)

// preferredExt pins extensions for types where system mime tables disagree
// or list several candidates.
var preferredExt = map[string]string{
	"text/plain":             "txt",
	"text/html":              "html",
	"text/markdown":          "md",
	"image/png":              "png",
	"image/jpeg":             "jpg",
	"image/gif":              "gif",
	"image/svg+xml":          "svg",
	"application/javascript": "js",
	"application/json":       "json",
	"application/pdf":        "pdf",
	"application/msword":     "doc",
	"application/zip":        "zip",
}

// ExtFromMimeType returns a file extension (without the dot) for a MIME type.
// Unknown types fall back to their subtype, so "foo/bar" yields "bar".
func ExtFromMimeType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := preferredExt[mt]; ok {
		return ext
	}

	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		sort.Strings(exts)
		return strings.TrimPrefix(exts[0], ".")
	}

	if _, sub, ok := strings.Cut(mt, "/"); ok && sub != "" {
		return sub
	}
	return "bin"
}
