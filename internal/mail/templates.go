package mail

import (
	"bytes"
	_ "embed"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

type templateParams struct {
	AppName string
	AppURL  string
	Email   string
	Name    string
	Link    string
}

var (
	//go:embed templates/welcome.html
	welcomeRaw string
	//go:embed templates/reset_password.html
	resetPasswordRaw string
	//go:embed templates/password_changed.html
	passwordChangedRaw string

	welcomeTemplate         = parse("welcome", welcomeRaw)
	resetPasswordTemplate   = parse("resetPassword", resetPasswordRaw)
	passwordChangedTemplate = parse("passwordChanged", passwordChangedRaw)
)

func parse(name, raw string) *template.Template {
	return template.Must(template.New(name).Funcs(sprig.FuncMap()).Parse(raw))
}

func render(t *template.Template, p templateParams) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}
