// Package pysrc reads and edits Python source through tree-sitter concrete syntax trees.
package pysrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Kind classifies a definition.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
)

// Definition is a function or class found in a Python file.
type Definition struct {
	Name          string
	QualifiedName string // dotted path through enclosing definitions, e.g. Outer.inner
	Kind          Kind
	StartLine     int // 1-based, inclusive
	EndLine       int // 1-based, inclusive
	StartByte     int
	EndByte       int
	Code          string
	HasDocstring  bool
	Nested        bool // defined inside a function, or a class defined inside another definition

	// byte offset of the first statement of the body; -1 when the body is missing
	bodyStart int
}

// Public reports whether the definition counts toward docstring coverage.
// Constructors, dunder methods, private and semi-private names are all excluded.
func (d Definition) Public() bool {
	return d.Name != "" && !strings.HasPrefix(d.Name, "_")
}

// File is a parsed Python source file. Close releases the syntax tree.
type File struct {
	src  []byte
	tree *sitter.Tree
}

// Parse builds a concrete syntax tree for src. A parser is created per call so Parse is safe for concurrent use.
func Parse(ctx context.Context, src []byte) (*File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree.RootNode() == nil {
		tree.Close()
		return nil, fmt.Errorf("tree-sitter returned nil root node")
	}
	return &File{src: src, tree: tree}, nil
}

// Close releases the underlying tree.
func (f *File) Close() {
	if f != nil && f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Source returns the bytes the file was parsed from.
func (f *File) Source() []byte {
	return f.src
}

// HasErrors reports whether the tree contains syntax errors.
func (f *File) HasErrors() bool {
	return f.tree.RootNode().HasError()
}

// Definitions lists every function and class in source order, including decorated and nested ones.
func (f *File) Definitions() []Definition {
	var defs []Definition
	f.collect(f.tree.RootNode(), nil, "", &defs)
	return defs
}

// collect walks node's children. scope holds enclosing definition names; enclosing is the kind of
// the nearest one ("" at module level).
func (f *File) collect(node *sitter.Node, scope []string, enclosing Kind, out *[]Definition) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "function_definition", "class_definition":
			def := f.definition(child, scope, enclosing)
			*out = append(*out, def)
			if body := blockOf(child); body != nil {
				inner := append(append([]string(nil), scope...), def.Name)
				f.collect(body, inner, def.Kind, out)
			}
		default:
			f.collect(child, scope, enclosing, out)
		}
	}
}

func (f *File) definition(node *sitter.Node, scope []string, enclosing Kind) Definition {
	var name string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			name = child.Content(f.src)
			break
		}
	}

	kind := KindFunction
	switch {
	case node.Type() == "class_definition":
		kind = KindClass
	case enclosing == KindClass:
		kind = KindMethod
	}

	def := Definition{
		Name:          name,
		QualifiedName: strings.Join(append(append([]string(nil), scope...), name), "."),
		Kind:          kind,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		StartByte:     int(node.StartByte()),
		EndByte:       int(node.EndByte()),
		Code:          node.Content(f.src),
		Nested:        enclosing != "" && kind != KindMethod,
		bodyStart:     -1,
	}

	if stmt := firstStatement(blockOf(node)); stmt != nil {
		def.bodyStart = int(stmt.StartByte())
		def.HasDocstring = isDocstring(stmt)
	}
	return def
}

func blockOf(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "block" {
			return child
		}
	}
	return nil
}

// firstStatement returns the first non-comment statement of a block.
func firstStatement(block *sitter.Node) *sitter.Node {
	if block == nil {
		return nil
	}
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}

func isDocstring(stmt *sitter.Node) bool {
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return false
	}
	switch stmt.NamedChild(0).Type() {
	case "string", "concatenated_string":
		return true
	}
	return false
}
