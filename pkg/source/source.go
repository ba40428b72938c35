package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourceFile represents the front-end document a method body was produced from.
// Content is optional; when present it is used to print the offending line in
// error reports.
type SourceFile struct {
	Name    string   // Display name (e.g., "Program.cs", "<fixture>")
	Path    string   // Full file path (empty for synthesized input)
	Content string   // The source code content, if known
	lines   []string // Cached split lines (lazy initialization)
}

// NewSourceFile creates a new source file
func NewSourceFile(name, path, content string) *SourceFile {
	return &SourceFile{
		Name:    name,
		Path:    path,
		Content: content,
	}
}

// FromFile creates a SourceFile from a file path and content
func FromFile(filePath, content string) *SourceFile {
	name := filepath.Base(filePath)
	return NewSourceFile(name, filePath, content)
}

// Lines returns the source split into lines (cached)
func (sf *SourceFile) Lines() []string {
	if sf.lines == nil {
		sf.lines = strings.Split(sf.Content, "\n")
	}
	return sf.lines
}

// Line returns the 1-based line n, or "" when unknown.
func (sf *SourceFile) Line(n int) string {
	if sf == nil || sf.Content == "" {
		return ""
	}
	lines := sf.Lines()
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[n-1], "\r\n\t ")
}

// DisplayPath returns the best path for display (prefers Path, falls back to Name)
func (sf *SourceFile) DisplayPath() string {
	if sf == nil {
		return "unknown"
	}
	if sf.Path != "" {
		return sf.Path
	}
	return sf.Name
}

// Position is a location in a source file. Line and Column are 1-based; a zero
// Line means the position is unknown (compiler-synthesized code).
type Position struct {
	Line   int
	Column int
	File   *SourceFile
}

// At returns a position in file.
func At(file *SourceFile, line, column int) Position {
	return Position{Line: line, Column: column, File: file}
}

// IsKnown reports whether the position carries a line number.
func (p Position) IsKnown() bool {
	return p.Line > 0
}

func (p Position) String() string {
	if !p.IsKnown() {
		return fmt.Sprintf("%s:?", p.File.DisplayPath())
	}
	return fmt.Sprintf("%s:%d:%d", p.File.DisplayPath(), p.Line, p.Column)
}
