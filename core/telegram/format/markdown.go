package format

import (
	"html"
	"strings"

	"github.com/m3rciful/grinbot/core/markup"
)

// TelegramHTML converts neutral markup into the HTML subset accepted by
// Telegram's HTML parse mode. Everything else is escaped.
func TelegramHTML(text string) string {
	var b strings.Builder
	for _, seg := range markup.Split(text) {
		escaped := html.EscapeString(seg.Text)
		if seg.Pre {
			b.WriteString("<pre>" + escaped + "</pre>")
			continue
		}
		b.WriteString(markup.Emphasis(escaped, wrap("b"), wrap("i")))
	}
	return b.String()
}

func wrap(tag string) func(string) string {
	return func(s string) string {
		return "<" + tag + ">" + s + "</" + tag + ">"
	}
}
