// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"html/template"
	"strings"
)

// ShareEmailData fills the share notification.
type ShareEmailData struct {
	AppName  string
	SharedBy string // name or email of the owner
	ItemKind string // "file" or "folder"
	ItemName string
	OpenURL  string // optional
}

var shareHTML = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2937;">
  <h2 style="margin: 0 0 16px;">{{.SharedBy}} shared a {{.ItemKind}} with you</h2>
  <p style="font-size: 16px;"><strong>{{.ItemName}}</strong></p>
  {{if .OpenURL}}<p><a href="{{.OpenURL}}" style="background: #2563eb; color: #fff; padding: 10px 18px; border-radius: 6px; text-decoration: none;">Open in {{.AppName}}</a></p>{{end}}
  <p style="color: #6b7280; font-size: 13px;">You are receiving this because someone shared an item with this address on {{.AppName}}.</p>
</body>
</html>`))

// ShareEmail renders the subject and bodies of a share notification.
func ShareEmail(data ShareEmailData) Email {
	var text strings.Builder
	text.WriteString(data.SharedBy + " shared a " + data.ItemKind + " with you on " + data.AppName + ":\n\n")
	text.WriteString("    " + data.ItemName + "\n")
	if data.OpenURL != "" {
		text.WriteString("\nOpen it here: " + data.OpenURL + "\n")
	}

	var html bytes.Buffer
	if err := shareHTML.Execute(&html, data); err != nil {
		html.Reset()
	}

	return Email{
		Subject:  data.SharedBy + " shared \"" + data.ItemName + "\" with you",
		TextBody: text.String(),
		HTMLBody: html.String(),
	}
}
