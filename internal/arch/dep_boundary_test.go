//go:build integration

package arch

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

// transitiveForbidden must not be reachable from the core even through a
// chain of imports.
var transitiveForbidden = []string{
	"google.golang.org/grpc",
	"github.com/prometheus/client_golang",
	"github.com/spf13/cobra",
	"github.com/spf13/viper",
	"net/http",
	module + "/internal/adapters",
	module + "/internal/cli",
}

// TestCoreTransitiveDependencies loads internal/core with full dependency
// information and reports every forbidden package together with the import
// chain that reaches it.
func TestCoreTransitiveDependencies(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps | packages.NeedModule,
		Dir:  moduleRoot(t),
	}
	pkgs, err := packages.Load(cfg, module+"/internal/core/...")
	require.NoError(t, err)
	require.Zero(t, packages.PrintErrors(pkgs), "failed to load core packages")

	violations := make(map[string][]string)
	for _, p := range pkgs {
		walkImports(p, []string{p.PkgPath}, map[string]bool{}, violations)
	}

	if len(violations) == 0 {
		return
	}
	keys := make([]string, 0, len(violations))
	for k := range violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("core reaches forbidden packages:\n")
	for _, k := range keys {
		b.WriteString("  - " + k + "\n    via " + strings.Join(violations[k], " -> ") + "\n")
	}
	t.Fatal(b.String())
}

func walkImports(p *packages.Package, chain []string, seen map[string]bool, violations map[string][]string) {
	for path, imp := range p.Imports {
		if seen[path] {
			continue
		}
		seen[path] = true
		next := append(append([]string(nil), chain...), path)

		for _, prefix := range transitiveForbidden {
			if matchesPrefix(path, prefix) {
				if _, ok := violations[path]; !ok {
					violations[path] = next
				}
			}
		}
		// Third-party internals are their own business.
		if imp != nil && strings.HasPrefix(path, module+"/") {
			walkImports(imp, next, seen, violations)
		}
	}
}
