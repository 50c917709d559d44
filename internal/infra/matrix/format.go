package matrix

import (
	"html"
	"strings"
)

// Content formats accepted by the send endpoint.
const (
	msgTypeText = "m.text"
	formatHTML  = "org.matrix.custom.html"
)

// messageContent is the body of an m.room.message event.
type messageContent struct {
	MsgType       string `json:"msgtype"`
	Format        string `json:"format,omitempty"`
	Body          string `json:"body"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// FormatAlert builds the plain-text fallback and the HTML body for an alert.
// All three fields are HTML-escaped in the rich body; newlines in the message
// become <br/>.
func FormatAlert(subject, message, severity string) (plain, formatted string) {
	plain = subject + "\n\n" + message + "\n\nSeverity: " + severity

	msg := strings.ReplaceAll(message, "\r\n", "\n")
	formatted = "<strong>" + html.EscapeString(subject) + "</strong><br/><br/>" +
		strings.ReplaceAll(html.EscapeString(msg), "\n", "<br/>") +
		"<br/><br/><em>Severity: " + html.EscapeString(severity) + "</em>"
	return plain, formatted
}

func alertContent(subject, message, severity string) messageContent {
	plain, formatted := FormatAlert(subject, message, severity)
	return messageContent{
		MsgType:       msgTypeText,
		Format:        formatHTML,
		Body:          plain,
		FormattedBody: formatted,
	}
}

func textContent(text string) messageContent {
	return messageContent{MsgType: msgTypeText, Body: text}
}
