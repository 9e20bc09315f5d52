// Package normalisers provides implementations of the Normaliser interface
// for various document formats. Each normaliser knows how to extract text
// content from a specific MIME type.
//
// The Registry in this package selects a normaliser by MIME type and
// priority and is the TextExtractor used by the semantic indexer.
// RegisterDefaults wires in every built-in format.
package normalisers
