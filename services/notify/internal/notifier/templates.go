package notifier

import (
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
)

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var funcs = map[string]any{
	"days": func(n int) string {
		if n == 1 {
			return "1 day"
		}
		return strconv.Itoa(n) + " days"
	},
}

const stayText = `Stay: {{.Since}} - {{.Until}} ({{.Nights}} night{{if ne .Nights 1}}s{{end}})
Guests:
{{range .Guests}}  - {{.Name}}{{if .Email}} <{{.Email}}>{{end}}
{{end}}`

const stayHTML = `<h5>Stay</h5>
<p>From: {{.Since}}<br>To: {{.Until}}</p>
<h5>Guests</h5>
<ul>{{range .Guests}}<li>{{.Name}}</li>{{end}}</ul>
{{if .Link}}<p><a href="{{.Link}}">View reservation</a></p>{{end}}`

func mustTemplate(subject, text, html string) emailTemplate {
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New("subject").Funcs(funcs).Parse(subject)),
		text:    texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(text + "\n" + stayText)),
		html:    htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(html + "\n" + stayHTML)),
	}
}

var templates = map[Kind]emailTemplate{
	KindConfirmation: mustTemplate(
		`{{.Property}}: your reservation is confirmed`,
		`Hello {{.OwnerName}},

your reservation is confirmed.`,
		`<h3>Your reservation is confirmed</h3>`,
	),
	KindUpdate: mustTemplate(
		`{{.Property}}: your reservation has changed`,
		`Hello {{.OwnerName}},

your reservation has been changed. The current details are below.`,
		`<h3>Your reservation has changed</h3>`,
	),
	KindCancellation: mustTemplate(
		`{{.Property}}: your reservation has been canceled`,
		`Hello {{.OwnerName}},

your reservation has been canceled.`,
		`<h3>Your reservation has been canceled</h3>`,
	),
	KindReminder: mustTemplate(
		`{{.Property}}: your stay starts in {{days .InDays}}`,
		`Hello {{.OwnerName}},

a reminder about your upcoming stay, starting in {{days .InDays}}.`,
		`<h3>Your stay starts in {{days .InDays}}</h3>`,
	),
}
