package domain

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ExtraMIMEType is the Provenance.Extra key that overrides MIME detection.
const ExtraMIMEType = "mime_type"

// Fallback types for extensions the platform MIME table often lacks.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".eml":      "message/rfc822",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".json":     "application/json",
}

// DetectMIMEType guesses the MIME type of a file from its name, falling back
// to content sniffing when the extension is unknown. Parameters such as
// charset are stripped.
func DetectMIMEType(filename string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}
	if len(content) == 0 {
		if ext == "" {
			return "text/plain"
		}
		return "application/octet-stream"
	}
	return stripParams(http.DetectContentType(content))
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
