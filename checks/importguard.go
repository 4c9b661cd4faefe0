package checks

import (
	"context"
	"go/parser"
	"go/token"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"

	"github.com/gophersatwork/quench"
)

// ImportGuard enforces allowed/prohibited import rules for Go files under
// configured path prefixes.
type ImportGuard struct {
	rules []quench.ImportRule
}

// NewImportGuard creates the check for the given rules.
func NewImportGuard(rules []quench.ImportRule) *ImportGuard {
	return &ImportGuard{rules: rules}
}

func (c *ImportGuard) Name() string {
	return "import-guard"
}

func (c *ImportGuard) AppliesTo(fd quench.FileDescriptor) bool {
	return len(c.rules) > 0 && strings.HasSuffix(fd.Path, ".go")
}

func (c *ImportGuard) Run(ctx context.Context, files []quench.FileDescriptor, cc *quench.CheckContext) (*quench.CheckResult, error) {
	result := &quench.CheckResult{}
	if len(c.rules) == 0 {
		return result, nil
	}

	moduleName := readModulePath(cc.FS, cc.Root)
	matchers := make([]*ruleMatcher, len(c.rules))
	for i, rule := range c.rules {
		matchers[i] = newRuleMatcher(rule, moduleName)
	}

	for _, fd := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		imports, err := c.parseImports(cc, fd.Path)
		if err != nil {
			cc.Logger.Debug("Failed to parse file", "check", c.Name(), "path", fd.Path, "error", err)
			continue
		}

		relDir := quench.RelPath(cc.Root, fd.Path)
		if idx := strings.LastIndex(relDir, "/"); idx >= 0 {
			relDir = relDir[:idx]
		} else {
			relDir = "."
		}

		for _, m := range matchers {
			if !m.appliesToDir(relDir) {
				continue
			}
			for _, imp := range imports {
				if v := m.checkImport(fd.Path, imp); v != nil {
					result.Violations = append(result.Violations, *v)
				}
			}
		}
	}

	return result, nil
}

type importSpec struct {
	path string
	line int
}

func (c *ImportGuard) parseImports(cc *quench.CheckContext, path string) ([]importSpec, error) {
	content, err := cc.Reader.Read(path)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content.Data, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	var imports []importSpec
	for _, s := range file.Imports {
		imports = append(imports, importSpec{
			path: strings.Trim(s.Path.Value, `"`),
			line: fset.Position(s.Path.Pos()).Line,
		})
	}
	return imports, nil
}

// readModulePath extracts the module path from the root go.mod. An absent
// or unparsable modfile just disables module-relative rule expansion.
func readModulePath(fs afero.Fs, root string) string {
	data, err := afero.ReadFile(fs, quench.JoinPaths(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

type prohibitedInfo struct {
	cause string
}

// ruleMatcher resolves one import rule against import paths, with
// module-relative shorthand expanded against the project's module name.
type ruleMatcher struct {
	rule          quench.ImportRule
	moduleName    string
	allowedSet    map[string]bool
	prohibitedMap map[string]prohibitedInfo
}

func newRuleMatcher(rule quench.ImportRule, moduleName string) *ruleMatcher {
	m := &ruleMatcher{
		rule:          rule,
		moduleName:    moduleName,
		allowedSet:    make(map[string]bool),
		prohibitedMap: make(map[string]prohibitedInfo),
	}

	for _, allowed := range rule.Allowed {
		m.allowedSet[allowed] = true
		if moduleName != "" && !strings.Contains(allowed, ".") {
			m.allowedSet[moduleName+"/"+allowed] = true
		}
	}

	for _, prohibited := range rule.Prohibited {
		info := prohibitedInfo{cause: prohibited.Cause}
		m.prohibitedMap[prohibited.Name] = info
		if moduleName != "" && !strings.Contains(prohibited.Name, ".") {
			m.prohibitedMap[moduleName+"/"+prohibited.Name] = info
		}
	}

	return m
}

func (m *ruleMatcher) appliesToDir(relDir string) bool {
	rulePath := quench.NormalizePath(m.rule.Path)
	return relDir == rulePath || quench.IsSubPath(rulePath, relDir)
}

func (m *ruleMatcher) isProhibited(imp string) (string, bool) {
	if info, exists := m.prohibitedMap[imp]; exists {
		return info.cause, true
	}

	for prohibitedPath, info := range m.prohibitedMap {
		if strings.Contains(prohibitedPath, "/") && !strings.HasPrefix(prohibitedPath, m.moduleName) {
			if strings.HasSuffix(imp, prohibitedPath) {
				return info.cause, true
			}
		}
	}

	return "", false
}

func (m *ruleMatcher) isAllowed(imp string) bool {
	if len(m.rule.Allowed) == 0 {
		return true
	}
	return m.allowedSet[imp]
}

func (m *ruleMatcher) checkImport(file string, imp importSpec) *quench.Violation {
	if cause, prohibited := m.isProhibited(imp.path); prohibited {
		advice := "remove the import"
		if cause != "" {
			advice = cause
		}
		return &quench.Violation{
			File:     file,
			Line:     imp.line,
			Check:    "import-guard",
			Kind:     "prohibited-import",
			Message:  "import " + imp.path + " is prohibited here",
			Advice:   advice,
			Severity: quench.SeverityError,
		}
	}

	if !m.isAllowed(imp.path) {
		return &quench.Violation{
			File:     file,
			Line:     imp.line,
			Check:    "import-guard",
			Kind:     "disallowed-import",
			Message:  "import " + imp.path + " is not in the allowed list",
			Advice:   "use one of the allowed dependencies for this package",
			Severity: quench.SeverityError,
		}
	}

	return nil
}
