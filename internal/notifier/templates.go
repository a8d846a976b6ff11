package notifier

import (
	"bytes"
	"fmt"
	"text/template"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(name, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=zero").Parse(body)),
	}
}

var templates = map[string]emailTemplate{
	TemplateBookingRequested: mustTemplate(TemplateBookingRequested,
		`We received your booking for {{.Data.service}}`,
		`Hi {{.Name}},

Thanks for booking {{.Data.service}} on {{.Data.starts_at}}.
We will confirm your appointment shortly.

T Creative Studio`),
	TemplateBookingConfirmed: mustTemplate(TemplateBookingConfirmed,
		`Your {{.Data.service}} appointment is confirmed`,
		`Hi {{.Name}},

Your appointment for {{.Data.service}} on {{.Data.starts_at}} is confirmed.
Show this link at the front desk to check in: {{.Data.checkin_url}}

T Creative Studio`),
	TemplateBookingCancelled: mustTemplate(TemplateBookingCancelled,
		`Your {{.Data.service}} appointment was cancelled`,
		`Hi {{.Name}},

Your appointment for {{.Data.service}} on {{.Data.starts_at}} has been cancelled.
{{if .Data.reason}}Reason: {{.Data.reason}}
{{end}}
T Creative Studio`),
	TemplateOrderPlaced: mustTemplate(TemplateOrderPlaced,
		`Order {{.Data.order_number}} received`,
		`Hi {{.Name}},

We received order {{.Data.order_number}} for {{.Data.total}}.
{{if .Data.payment_url}}Complete your payment here: {{.Data.payment_url}}
{{end}}
T Creative Studio`),
	TemplateEnrollmentCreated: mustTemplate(TemplateEnrollmentCreated,
		`You're {{.Data.status}} for {{.Data.program}}`,
		`Hi {{.Name}},

Your registration for {{.Data.program}} is {{.Data.status}}.

T Creative Studio`),
}

// Message is a rendered plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

func Render(job EmailJob) (Message, error) {
	tpl, ok := templates[job.Template]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", job.Template)
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, job); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, job); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{To: job.To, Subject: subject.String(), Body: body.String()}, nil
}
