package pysrc

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Symbols returns the sorted names of every class and function defined in the file, and the sorted,
// de-duplicated imported names (module.name for from-imports).
func (f *File) Symbols() (exports, imports []string) {
	for _, d := range f.Definitions() {
		exports = append(exports, d.Name)
	}
	sort.Strings(exports)

	seen := map[string]struct{}{}
	f.walkImports(f.tree.RootNode(), seen)
	for name := range seen {
		imports = append(imports, name)
	}
	sort.Strings(imports)
	return exports, imports
}

func (f *File) walkImports(node *sitter.Node, seen map[string]struct{}) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import_statement":
			for _, name := range f.importedNames(child) {
				seen[name] = struct{}{}
			}
		case "import_from_statement":
			module := ""
			afterImport := false
			for j := 0; j < int(child.ChildCount()); j++ {
				part := child.Child(j)
				switch part.Type() {
				case "import":
					afterImport = true
				case "dotted_name":
					if !afterImport {
						module = part.Content(f.src)
					}
				case "relative_import":
					module = strings.TrimLeft(part.Content(f.src), ".")
				}
			}
			for _, name := range f.importedNames(child) {
				if module != "" {
					name = module + "." + name
				}
				seen[name] = struct{}{}
			}
		default:
			f.walkImports(child, seen)
		}
	}
}

// importedNames lists the names bound after the "import" keyword of an import statement, ignoring aliases.
func (f *File) importedNames(stmt *sitter.Node) []string {
	var names []string
	afterImport := stmt.Type() == "import_statement"
	for i := 0; i < int(stmt.ChildCount()); i++ {
		part := stmt.Child(i)
		switch part.Type() {
		case "import":
			afterImport = true
		case "dotted_name":
			if afterImport {
				names = append(names, part.Content(f.src))
			}
		case "aliased_import":
			if afterImport && part.NamedChildCount() > 0 {
				names = append(names, part.NamedChild(0).Content(f.src))
			}
		case "wildcard_import":
			if afterImport {
				names = append(names, "*")
			}
		}
	}
	return names
}
