package notify

import (
	"bytes"
	"text/template"
)

// ConfirmationTemplate is the body sent to a proposal's sender on intake.
var ConfirmationTemplate = template.Must(template.New("confirmation").
	Parse("We received your proposal '{{.Title}}'. Our team will review it soon."))

// RenderTemplate executes tpl with data.
func RenderTemplate(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
