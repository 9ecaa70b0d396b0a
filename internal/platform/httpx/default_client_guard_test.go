// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// Package-level helpers in net/http that go through http.DefaultClient.
var defaultClientFuncs = []string{"DefaultClient", "Get", "Head", "Post", "PostForm"}

// TestOutboundCallsUseHttpx fails when production code reaches the origin
// without the timeouts NewClient sets.
func TestOutboundCallsUseHttpx(t *testing.T) {
	root := filepath.Clean(filepath.Join("..", "..", ".."))
	fset := token.NewFileSet()
	var violations []string

	for _, dir := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
			if err != nil {
				return err
			}
			ast.Inspect(file, func(n ast.Node) bool {
				sel, ok := n.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				if id, ok := sel.X.(*ast.Ident); ok && id.Name == "http" && slices.Contains(defaultClientFuncs, sel.Sel.Name) {
					violations = append(violations, fset.Position(sel.Pos()).String()+": http."+sel.Sel.Name)
				}
				return true
			})
			return nil
		})
		if err != nil {
			t.Fatalf("scan %s: %v", dir, err)
		}
	}

	if len(violations) > 0 {
		slices.Sort(violations)
		t.Fatalf("use httpx.NewClient instead of the default client:\n%s", strings.Join(violations, "\n"))
	}
}
