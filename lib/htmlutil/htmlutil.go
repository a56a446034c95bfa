package htmlutil

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText trims element text and collapses the runs of whitespace that the portal's
// indented markup leaves inside it.
func CleanText(text string) string {
	text = removeNonPrintable(text)
	text = strings.TrimSpace(text)
	text = innerWhitespace.ReplaceAllString(text, " ")
	return text
}

// ResolveHref joins a possibly relative href against base, absolute hrefs are returned as is.
func ResolveHref(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
