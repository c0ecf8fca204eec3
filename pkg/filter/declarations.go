package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gotreesitter "github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"
	classify "github.com/odvcencio/gts-suite/pkg/lang/treesitter"

	"github.com/odvcencio/reforge/pkg/rewrite"
)

// Declarations splits source files into one blob per top-level declaration,
// named "<file>#<name>". Methods are named "<file>#<Receiver>.<name>".
// Files in languages without a grammar pass through unchanged.
type Declarations struct {
	Patterns     *Matcher // empty selects every file
	KeepOriginal bool
}

func (Declarations) Name() string { return "declarations" }

func (d Declarations) PathDependent() bool { return d.Patterns.PathDependent() }

func (d Declarations) RewriteBlob(ctx context.Context, b *rewrite.Blob) ([]*rewrite.Blob, error) {
	if !d.Patterns.Empty() && !d.Patterns.Match(blobPath(ctx, b.Name)) {
		return keep(b), nil
	}
	if grammars.DetectLanguage(b.Name) == nil {
		return keep(b), nil
	}
	src, err := b.Content()
	if err != nil {
		return nil, err
	}
	decls, err := extractDeclarations(b.Name, src)
	if err != nil {
		return nil, fmt.Errorf("declarations %s: %w", b.Name, err)
	}

	var out []*rewrite.Blob
	if d.KeepOriginal {
		out = append(out, b)
	}
	seen := make(map[string]int)
	for _, decl := range decls {
		name := b.Name + "#" + strings.ReplaceAll(decl.name, "/", "_")
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "~" + strconv.Itoa(n)
		}
		body := decl.body
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		out = append(out, b.Derive(name, body))
	}
	return out, nil
}

type declaration struct {
	name string
	body []byte
}

// extractDeclarations returns the top-level declarations of source in file
// order. Members of classes, structs and similar containers are returned
// individually.
func extractDeclarations(filename string, source []byte) ([]declaration, error) {
	if len(source) == 0 {
		return nil, nil
	}
	bt, err := grammars.ParseFile(filename, source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer bt.Release()

	var out []declaration
	emit := func(n *gotreesitter.Node) {
		start, end := n.StartByte(), n.EndByte()
		if end < start || int(end) > len(source) {
			return
		}
		body := make([]byte, end-start)
		copy(body, source[start:end])
		out = append(out, declaration{name: declarationName(bt, n), body: body})
	}

	root := bt.RootNode()
	for i := 0; i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if !isDeclaration(bt, child) {
			for _, n := range nestedDeclarations(bt, child) {
				emit(n)
			}
			continue
		}
		if containerTypes[bt.NodeType(child)] {
			if nested := nestedDeclarations(bt, child); len(nested) > 0 {
				for _, n := range nested {
					emit(n)
				}
				continue
			}
		}
		emit(child)
	}
	return out, nil
}

var containerTypes = map[string]bool{
	"class_definition":      true,
	"class_declaration":     true,
	"interface_declaration": true,
	"struct_item":           true,
	"trait_item":            true,
	"impl_item":             true,
}

func isDeclaration(bt *gotreesitter.BoundTree, n *gotreesitter.Node) bool {
	typ := bt.NodeType(n)
	if classify.ImportNodeTypes[typ] || classify.PreambleNodeTypes[typ] {
		return false
	}
	if classify.DeclarationNodeTypes[typ] || typ == "method_definition" {
		return true
	}
	if !n.IsNamed() || !(strings.Contains(typ, "declaration") || strings.Contains(typ, "definition")) {
		return false
	}
	return firstNamed(bt, n, classify.NameIdentifierTypes) != nil
}

func nestedDeclarations(bt *gotreesitter.BoundTree, n *gotreesitter.Node) []*gotreesitter.Node {
	var out []*gotreesitter.Node
	for i := 0; i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if isDeclaration(bt, child) {
			if containerTypes[bt.NodeType(child)] {
				if nested := nestedDeclarations(bt, child); len(nested) > 0 {
					out = append(out, nested...)
					continue
				}
			}
			out = append(out, child)
			continue
		}
		out = append(out, nestedDeclarations(bt, child)...)
	}
	return out
}

func declarationName(bt *gotreesitter.BoundTree, n *gotreesitter.Node) string {
	switch bt.NodeType(n) {
	case "method_declaration":
		var recv, name string
		for i := 0; i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			switch typ := bt.NodeType(child); {
			case typ == "parameter_list" && recv == "":
				if id := firstNamed(bt, child, map[string]bool{"type_identifier": true}); id != nil {
					recv = bt.NodeText(id)
				}
			case typ == "field_identifier" || classify.NameIdentifierTypes[typ]:
				name = bt.NodeText(child)
			}
			if name != "" {
				break
			}
		}
		if recv != "" {
			return recv + "." + name
		}
		return name
	case "type_declaration":
		if id := firstNamed(bt, n, map[string]bool{"type_identifier": true}); id != nil {
			return bt.NodeText(id)
		}
	case "var_declaration", "const_declaration":
		if id := firstNamed(bt, n, map[string]bool{"identifier": true}); id != nil {
			return bt.NodeText(id)
		}
	}
	if id := firstNamed(bt, n, classify.NameIdentifierTypes); id != nil {
		return bt.NodeText(id)
	}
	return bt.NodeType(n)
}

// firstNamed returns the first descendant of n, depth first, whose type is
// in types.
func firstNamed(bt *gotreesitter.BoundTree, n *gotreesitter.Node, types map[string]bool) *gotreesitter.Node {
	for i := 0; i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if types[bt.NodeType(child)] {
			return child
		}
		if found := firstNamed(bt, child, types); found != nil {
			return found
		}
	}
	return nil
}
