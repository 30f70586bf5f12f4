// Package templates renders notification emails. Each kind has an embedded
// html/template document; a shared preferences footer is spliced into the
// rendered HTML and a plain-text alternative is derived from the result.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/jwalitptl/hiring-api/internal/model"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

//go:embed html/*.html
var files embed.FS

// TimeLayout is used for every timestamp shown to a recipient.
const TimeLayout = "Monday, January 2, 2006 at 15:04 MST"

const preferencesPath = "/settings/notifications"

// Data is the union of fields the templates read. Unused fields are ignored
// by kinds that do not need them.
type Data struct {
	RecipientName  string       `json:"recipient_name,omitempty"`
	ApplicationID  string       `json:"application_id,omitempty"`
	ApplicationURL string       `json:"application_url,omitempty"`
	JobTitle       string       `json:"job_title,omitempty"`
	CompanyName    string       `json:"company_name,omitempty"`
	OldStatus      string       `json:"old_status,omitempty"`
	NewStatus      string       `json:"new_status,omitempty"`
	Note           string       `json:"note,omitempty"`
	Interview      *Interview   `json:"interview,omitempty"`
	Jobs           []JobSummary `json:"jobs,omitempty"`
	PreferencesURL string       `json:"preferences_url,omitempty"`
}

type Interview struct {
	At          time.Time `json:"at"`
	Location    string    `json:"location,omitempty"`
	MeetingURL  string    `json:"meeting_url,omitempty"`
	Interviewer string    `json:"interviewer,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type JobSummary struct {
	Title    string `json:"title"`
	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Rendered is a ready-to-send message body.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer is safe for concurrent use once constructed.
type Renderer struct {
	pages     map[model.NotificationKind]*template.Template
	footer    *template.Template
	publicURL string
}

var kinds = []model.NotificationKind{
	model.KindApplicationReceived,
	model.KindStatusUpdate,
	model.KindInterviewScheduled,
	model.KindJobAlertDigest,
}

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format(TimeLayout)
	},
}

// New parses the embedded templates. publicURL is the web application base
// used for preference and application links.
func New(publicURL string) (*Renderer, error) {
	r := &Renderer{
		pages:     make(map[model.NotificationKind]*template.Template, len(kinds)),
		publicURL: strings.TrimRight(publicURL, "/"),
	}

	for _, kind := range kinds {
		name := string(kind) + ".html"
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").ParseFS(files, "html/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[kind] = tmpl
	}

	footer, err := template.New("footer.html").ParseFS(files, "html/footer.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse footer template: %w", err)
	}
	r.footer = footer

	return r, nil
}

// Render produces the subject, HTML and text bodies for kind. It returns a
// TemplateRender error when the kind is unknown or required data is missing.
func (r *Renderer) Render(kind model.NotificationKind, data Data) (*Rendered, error) {
	tmpl, ok := r.pages[kind]
	if !ok {
		return nil, apperrors.TemplateRender(string(kind), fmt.Errorf("unknown notification kind"))
	}
	if err := validate(kind, data); err != nil {
		return nil, apperrors.TemplateRender(string(kind), err)
	}

	if data.PreferencesURL == "" {
		data.PreferencesURL = r.publicURL + preferencesPath
	}
	if data.ApplicationURL == "" && data.ApplicationID != "" {
		data.ApplicationURL = r.publicURL + "/applications/" + data.ApplicationID
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, apperrors.TemplateRender(string(kind), err)
	}

	var footer bytes.Buffer
	if err := r.footer.Execute(&footer, data); err != nil {
		return nil, apperrors.TemplateRender(string(kind), err)
	}

	html := InsertFooter(body.String(), footer.String())
	return &Rendered{
		Subject: subject(kind, data),
		HTML:    html,
		Text:    PlainText(html),
	}, nil
}

func validate(kind model.NotificationKind, data Data) error {
	switch kind {
	case model.KindApplicationReceived:
		if data.JobTitle == "" {
			return errors.New("job title is required")
		}
	case model.KindStatusUpdate:
		if data.NewStatus == "" {
			return errors.New("new status is required")
		}
	case model.KindInterviewScheduled:
		if data.JobTitle == "" {
			return errors.New("job title is required")
		}
		if data.Interview == nil || data.Interview.At.IsZero() {
			return errors.New("interview time is required")
		}
	case model.KindJobAlertDigest:
		if len(data.Jobs) == 0 {
			return errors.New("at least one job is required")
		}
	}
	return nil
}

func subject(kind model.NotificationKind, data Data) string {
	switch kind {
	case model.KindApplicationReceived:
		return "Application received: " + data.JobTitle
	case model.KindStatusUpdate:
		if data.JobTitle != "" {
			return fmt.Sprintf("Update on your application for %s: %s", data.JobTitle, data.NewStatus)
		}
		return "Your application status: " + data.NewStatus
	case model.KindInterviewScheduled:
		return "Interview scheduled: " + data.JobTitle
	case model.KindJobAlertDigest:
		if len(data.Jobs) == 1 {
			return "1 new job this week"
		}
		return fmt.Sprintf("%d new jobs this week", len(data.Jobs))
	}
	return string(kind)
}
