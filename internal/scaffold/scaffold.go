// Package scaffold generates the boilerplate of a new daqmod package:
// module skeletons, application entry points and a docs stub, rendered from
// embedded templates.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Names follow the DAQ style guide: modules are PascalCase types, apps are
// snake_case binaries.
var (
	modulePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	appPattern    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// Options configures one generation run.
type Options struct {
	// Dir is the target directory. It must be empty apart from an optional
	// README.md and docs/ directory.
	Dir string

	// Package is the new package name, used for the generated go.mod.
	Package string

	// ModulePath overrides the generated go.mod module path. Defaults to
	// "example.com/<package>".
	ModulePath string

	// DaqmodReplace, when set, emits a replace directive pointing the
	// daqmod requirement at a local checkout so the generated package
	// builds before daqmod is published.
	DaqmodReplace string

	// Modules lists PascalCase module names to generate skeletons for.
	Modules []string

	// Apps lists snake_case application names to generate entry points for.
	Apps []string

	// now is overridable in tests.
	now func() time.Time
}

// Run validates the options and generates the package. Any failure removes
// everything the run created.
func Run(opt Options) (err error) {
	if opt.now == nil {
		opt.now = time.Now
	}
	if err := validate(&opt); err != nil {
		return err
	}
	if err := checkTargetDir(opt.Dir); err != nil {
		return err
	}

	var created []string
	defer func() {
		if err != nil {
			cleanup(created)
		}
	}()

	emit := func(rel string, content []byte) error {
		path := filepath.Join(opt.Dir, rel)
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return fmt.Errorf("scaffold: mkdir for %s: %w", rel, mkErr)
		}
		if wrErr := os.WriteFile(path, content, 0o644); wrErr != nil {
			return fmt.Errorf("scaffold: write %s: %w", rel, wrErr)
		}
		created = append(created, path)
		return nil
	}

	data := templateData{
		Package:       opt.Package,
		ModulePath:    opt.ModulePath,
		DaqmodReplace: opt.DaqmodReplace,
		Date:          opt.now().UTC().Format("2006-01-02"),
	}

	content, err := renderGoMod(data)
	if err != nil {
		return err
	}
	if err := emit("go.mod", content); err != nil {
		return err
	}

	for _, module := range opt.Modules {
		d := data
		d.Module = module
		d.ModuleLower = strings.ToLower(module)

		src, err := renderModule(d)
		if err != nil {
			return err
		}
		if err := emit(filepath.Join("internal", "modules", d.ModuleLower, "module.go"), src); err != nil {
			return err
		}

		test, err := renderModuleTest(d)
		if err != nil {
			return err
		}
		if err := emit(filepath.Join("internal", "modules", d.ModuleLower, "module_test.go"), test); err != nil {
			return err
		}
	}

	for _, app := range opt.Apps {
		d := data
		d.App = app
		src, err := renderApp(d)
		if err != nil {
			return err
		}
		if err := emit(filepath.Join("cmd", app, "main.go"), src); err != nil {
			return err
		}
	}

	if err := placeReadme(opt, emit); err != nil {
		return err
	}

	return nil
}

func validate(opt *Options) error {
	if opt.Dir == "" {
		return fmt.Errorf("scaffold: target directory is required")
	}
	if opt.Package == "" {
		opt.Package = filepath.Base(opt.Dir)
	}
	if opt.ModulePath == "" {
		opt.ModulePath = "example.com/" + opt.Package
	}
	if len(opt.Modules) == 0 && len(opt.Apps) == 0 {
		return fmt.Errorf("scaffold: nothing to generate; request at least one module or app")
	}

	for _, m := range opt.Modules {
		if !modulePattern.MatchString(m) {
			return fmt.Errorf("scaffold: module name %q must be PascalCase (no underscores, leading capital)", m)
		}
	}
	for _, a := range opt.Apps {
		if !appPattern.MatchString(a) {
			return fmt.Errorf("scaffold: app name %q must be snake_case (no capitals)", a)
		}
	}
	return nil
}

// checkTargetDir requires an empty directory apart from an optional
// README.md and docs/. A nonexistent directory is created by the caller's
// first emit.
func checkTargetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scaffold: read target dir: %w", err)
	}
	for _, e := range entries {
		switch e.Name() {
		case "README.md", "docs", ".git":
		default:
			return fmt.Errorf("scaffold: target directory %s is not empty (found %s); this tool only works on fresh packages", dir, e.Name())
		}
	}
	return nil
}

// placeReadme moves a pre-existing root README.md under docs/, or writes a
// dated placeholder when the package has no documentation yet.
func placeReadme(opt Options, emit func(string, []byte) error) error {
	rootReadme := filepath.Join(opt.Dir, "README.md")
	docsReadme := filepath.Join(opt.Dir, "docs", "README.md")

	if _, err := os.Stat(docsReadme); err == nil {
		return nil
	}

	if data, err := os.ReadFile(rootReadme); err == nil {
		if err := emit(filepath.Join("docs", "README.md"), data); err != nil {
			return err
		}
		if err := os.Remove(rootReadme); err != nil {
			return fmt.Errorf("scaffold: move README.md: %w", err)
		}
		return nil
	}

	placeholder := fmt.Sprintf("# No Official User Documentation Has Been Written Yet (%s)\n",
		opt.now().UTC().Format("2006-01-02"))
	return emit(filepath.Join("docs", "README.md"), []byte(placeholder))
}

func cleanup(created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		_ = os.Remove(created[i])
		// Remove now-empty parent directories, best effort.
		dir := filepath.Dir(created[i])
		for {
			if rmErr := os.Remove(dir); rmErr != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}
