package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

type ViolationMailParams struct {
	Subject      string
	Resolved     bool
	Violation    client.SLAViolation
	Escalation   *escalation.Level
	Tenant       string
	TicketURL    string
	BrandingName string
	SentAt       time.Time
}

var (
	//go:embed templates/violation.html
	violationTemplateRaw string

	violationTemplate = template.Must(template.New("violation").Funcs(sprig.FuncMap()).Parse(violationTemplateRaw))
)

func render(t *template.Template, p any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, p)
	return b.String(), err
}

func RenderViolation(p ViolationMailParams) (string, error) {
	return render(violationTemplate, p)
}

// Subject builds the alert subject line, e.g.
// "[ITSM] SLA violation #42 opened: response time (CRITICAL)".
func Subject(branding string, e *events.Event) string {
	verb := "opened"
	if e.Type == events.EventViolationResolved {
		verb = "resolved"
	}
	return fmt.Sprintf("[%s] SLA violation #%d %s: %s (%s)",
		branding, e.Violation.ID, verb,
		strings.ReplaceAll(e.Violation.ViolationType, "_", " "),
		strings.ToUpper(string(e.Severity)))
}
