package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type templateData struct {
	Package       string
	ModulePath    string
	DaqmodReplace string
	Module        string
	ModuleLower   string
	App           string
	Date          string
}

func render(name string, data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("scaffold: render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func renderGoMod(data templateData) ([]byte, error) {
	return render("go_mod.tmpl", data)
}

func renderModule(data templateData) ([]byte, error) {
	return render("module.go.tmpl", data)
}

func renderModuleTest(data templateData) ([]byte, error) {
	return render("module_test.go.tmpl", data)
}

func renderApp(data templateData) ([]byte, error) {
	return render("app_main.go.tmpl", data)
}
