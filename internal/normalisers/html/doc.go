// Package html provides a Normaliser implementation for HTML documents.
// It extracts readable text from HTML, stripping tags, scripts and styles
// and decoding entities. The eml normaliser reuses StripHTML for HTML-only
// message bodies.
package html
