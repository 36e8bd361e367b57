package util

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	anchorRe      = regexp.MustCompile(`(?i)<a\s[^>]*href\s*=\s*["']([^"']*)["'][^>]*>(.*?)</a\s*>`)
	brRe          = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	blockCloseRe  = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|blockquote|pre|table|tr)\s*>`)
	blockOpenRe   = regexp.MustCompile(`(?i)<(?:p|div|h[1-6]|blockquote|pre|table|tr)(?:\s[^>]*)?\s*>`)
	liOpenRe      = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?\s*>`)
	listWrapRe    = regexp.MustCompile(`(?i)</?(?:ul|ol|li)(?:\s[^>]*)?\s*>`)
	styleScriptRe = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(?:style|script)\s*>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	spacesRe      = regexp.MustCompile(`[^\S\n]+`)
)

// HTMLToText converts an HTML event body (Outlook sends these) into plain
// text suitable for storing as an event description. Links keep their target
// as "text (url)" unless the text already is the url.
func HTMLToText(s string) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = styleScriptRe.ReplaceAllString(s, "")

	s = brRe.ReplaceAllString(s, "\n")
	s = blockCloseRe.ReplaceAllString(s, "\n\n")
	s = blockOpenRe.ReplaceAllString(s, "\n")
	s = liOpenRe.ReplaceAllString(s, "\n• ")
	s = listWrapRe.ReplaceAllString(s, "")

	s = anchorRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := anchorRe.FindStringSubmatch(m)
		href := unwrapRedirect(html.UnescapeString(parts[1]))
		text := strings.TrimSpace(tagRe.ReplaceAllString(parts[2], ""))
		if text == "" || text == href {
			return href
		}
		return text + " (" + href + ")"
	})

	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spacesRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// unwrapRedirect extracts the real URL from Google and Outlook safe-link
// wrappers like https://www.google.com/url?q=REAL_URL&...
func unwrapRedirect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	switch {
	case u.Host == "www.google.com" && u.Path == "/url":
		if q := u.Query().Get("q"); q != "" {
			return q
		}
	case strings.HasSuffix(u.Host, "safelinks.protection.outlook.com"):
		if q := u.Query().Get("url"); q != "" {
			return q
		}
	}
	return rawURL
}
