package domain

// Document is a single source file read for indexing. Immutable once read.
type Document struct {
	// Path is the document identifier: its path relative to the source root.
	Path string
	// Text is the raw UTF-8 content.
	Text string
	// FileType is the lowercase file extension including the dot (".md", ".sql").
	FileType string
	// Size is the content length in characters (runes).
	Size int
	// Title is an extracted document title, when the file type supports one
	// (markdown heading or filename fallback).
	Title string
	// Models lists dbt model names declared in the file, when it is a dbt
	// schema YAML. Empty otherwise.
	Models []string
}
