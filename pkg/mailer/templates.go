package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Template names
const (
	TemplateEmailVerification = "email_verification"
	TemplatePasswordReset     = "password_reset"
)

// ActionData fills the templates
type ActionData struct {
	Product  string
	Username string
	Link     string
}

type emailTemplate struct {
	subject string
	body    *texttemplate.Template
}

var templates = map[string]emailTemplate{
	TemplateEmailVerification: {
		subject: "Please verify your email",
		body: texttemplate.Must(texttemplate.New(TemplateEmailVerification).Parse(`Hi {{.Username}},

Welcome to {{.Product}}! We're very excited to have you on board.

To verify your email please open the following link:

[Verify your email]({{.Link}})

The link expires in 20 minutes.

Need help, or have questions? Just reply to this email, we'd love to help.
`)),
	},
	TemplatePasswordReset: {
		subject: "Password reset request",
		body: texttemplate.Must(texttemplate.New(TemplatePasswordReset).Parse(`Hi {{.Username}},

We got a request to reset the password of your {{.Product}} account.

To reset your password open the following link:

[Reset password]({{.Link}})

If you did not request a reset you can ignore this email.
`)),
	},
}

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: sans-serif; line-height: 1.5; max-width: 600px; margin: 0 auto;">
{{.Body}}
</body>
</html>
`))

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Render builds the message for a named template. The markdown source is the
// plain text part; goldmark renders the HTML part.
func Render(name, to string, data ActionData) (*Message, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}

	var text bytes.Buffer
	if err := tmpl.body.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}

	var body bytes.Buffer
	if err := markdown.Convert(text.Bytes(), &body); err != nil {
		return nil, fmt.Errorf("failed to convert %s to html: %w", name, err)
	}

	var page bytes.Buffer
	err := layout.Execute(&page, struct {
		Subject string
		Body    template.HTML
	}{tmpl.subject, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("failed to render layout: %w", err)
	}

	return &Message{
		To:       to,
		Subject:  tmpl.subject,
		Text:     text.String(),
		HTML:     page.String(),
		Template: name,
	}, nil
}
