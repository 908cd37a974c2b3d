// Package messenger renders operator messages about booking runs.
package messenger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"text/template"

	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Generator renders booking and failure messages from templates. Output is
// Telegram-flavoured HTML; every field is escaped by the templates.
type Generator struct {
	booking *template.Template
	failure *template.Template
}

// TemplateData contains data for the booking template
type TemplateData struct {
	Location string
	Date     string // DD/MM/YYYY
	Hour     string
	DateText string
	Court    string
	Address  string
	DryRun   bool
}

// FailureData contains data for the failure template
type FailureData struct {
	Date     string
	Attempts int
	Reason   string
	Error    string
}

// NewGenerator creates a generator. A custom booking template is read from
// templatePath when set; a missing file falls back to the default.
func NewGenerator(templatePath string) (*Generator, error) {
	content := []byte(defaultBookingTemplate)
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		switch {
		case err == nil:
			content = data
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read template: %w", err)
		}
	}

	booking, err := template.New("booking").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	failure := template.Must(template.New("failure").Parse(defaultFailureTemplate))

	return &Generator{booking: booking, failure: failure}, nil
}

// Booking renders the confirmation message
func (g *Generator) Booking(conf domain.Confirmation) (string, error) {
	data := TemplateData{
		Location: conf.Location,
		Date:     conf.TargetDate.Format("02/01/2006"),
		Hour:     conf.Hour,
		DateText: conf.DateText,
		Court:    conf.CourtText,
		Address:  conf.Address,
		DryRun:   conf.DryRun,
	}
	return execute(g.booking, data)
}

// Failure renders the final failure of a run
func (g *Generator) Failure(result domain.BookingResult) (string, error) {
	data := FailureData{
		Date:     result.TargetDate.Format("02/01/2006"),
		Attempts: result.Attempts,
		Reason:   result.Reason,
	}
	if result.Err != nil {
		data.Error = result.Err.Error()
	}
	return execute(g.failure, data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultBookingTemplate = `{{if .DryRun}}🧪 <b>Test: créneau trouvé, réservation annulée</b>{{else}}🎾 <b>Court réservé !</b>{{end}}

📍 <b>{{html .Location}}</b>
📅 {{if .DateText}}{{html .DateText}}{{else}}{{.Date}} à {{.Hour}}h{{end}}
{{- if .Court}}
🏟 {{html .Court}}{{end}}
{{- if .Address}}
🏠 {{html .Address}}{{end}}
`

const defaultFailureTemplate = `❌ <b>Réservation échouée</b> pour le {{.Date}}

<b>Tentatives:</b> {{.Attempts}}
<b>Raison:</b> {{html .Reason}}
{{- if .Error}}
<pre>{{html .Error}}</pre>{{end}}
`
