package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ToText converts an HTML email body to plain text. Script/style content is
// dropped and whitespace collapsed. Falls back to the raw input when the
// document cannot be parsed.
func ToText(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements become line breaks so paragraphs don't run together.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()

	lines := strings.Split(text, "\n")
	cleanLines := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}

	return strings.Join(cleanLines, "\n")
}

// Preview produces a short single-line preview from an HTML or plain body,
// truncated to maxLen runes.
func Preview(html, plain string, maxLen int) string {
	text := plain
	if text == "" {
		text = ToText(html)
	}

	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}
