// Package arch holds architectural constraint tests. They keep the hexagonal
// boundaries of the certifier intact: the core never reaches into adapters or
// transport libraries, and adapters never reach into the CLI.
package arch

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const module = "github.com/sufield/certifier"

// forbiddenImports lists, per directory, the import prefixes its non-test
// files must not use.
var forbiddenImports = map[string][]string{
	"internal/core/errors": {
		"github.com/",
		"google.golang.org/",
		"golang.org/x/",
		module + "/internal/core/domain",
	},
	"internal/core/domain": {
		"google.golang.org/grpc",
		"github.com/spf13/",
		"github.com/prometheus/",
		"log/slog",
		"net",
		"net/http",
		"os",
		module + "/internal/core/ports",
		module + "/internal/core/services",
		module + "/internal/adapters",
	},
	"internal/core/ports": {
		"github.com/spiffe/go-spiffe",
		"google.golang.org/",
		"log/slog",
		"net",
		"net/http",
		module + "/internal/core/services",
		module + "/internal/adapters",
	},
	"internal/core/services": {
		"github.com/spiffe/go-spiffe",
		"google.golang.org/grpc",
		"github.com/prometheus/",
		"log/slog",
		"net",
		"net/http",
		"os",
		module + "/internal/adapters",
		module + "/internal/cli",
	},
	"internal/adapters": {
		module + "/internal/cli",
		module + "/pkg/",
	},
	"internal/contract": {
		module + "/internal/cli",
		"google.golang.org/grpc",
	},
}

// TestImportGraphConstraints parses the import blocks of every non-test file
// under each constrained directory.
func TestImportGraphConstraints(t *testing.T) {
	root := moduleRoot(t)

	for dir, forbidden := range forbiddenImports {
		t.Run(dir, func(t *testing.T) {
			for file, imports := range parseImports(t, filepath.Join(root, dir)) {
				for _, imp := range imports {
					for _, prefix := range forbidden {
						if matchesPrefix(imp, prefix) {
							rel, _ := filepath.Rel(root, file)
							t.Errorf("%s imports %s (forbidden in %s)", rel, imp, dir)
						}
					}
				}
			}
		})
	}
}

// TestCoreHasNoMain guards against commands sneaking into the core.
func TestCoreHasNoMain(t *testing.T) {
	root := moduleRoot(t)
	fset := token.NewFileSet()
	err := filepath.WalkDir(filepath.Join(root, "internal", "core"), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.PackageClauseOnly)
		if err != nil {
			return err
		}
		if f.Name.Name == "main" {
			t.Errorf("%s declares package main", path)
		}
		return nil
	})
	require.NoError(t, err)
}

func matchesPrefix(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// parseImports returns the imports of every non-test Go file below dir.
func parseImports(t *testing.T, dir string) map[string][]string {
	t.Helper()
	out := make(map[string][]string)
	fset := token.NewFileSet()

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			p, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return err
			}
			out[path] = append(out[path], p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

// moduleRoot walks up from the working directory to the directory holding
// go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found")
		dir = parent
	}
}
