package okta

import (
	"net/url"
	"regexp"
)

var linkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="([^"]+)"`)

// ParseLinkHeader разбирает заголовок Link в карту rel -> url.
func ParseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	for _, m := range linkRe.FindAllStringSubmatch(header, -1) {
		if _, seen := links[m[2]]; !seen {
			links[m[2]] = m[1]
		}
	}
	return links
}

// NextCursor достает курсор (параметр after) из ссылки rel="next".
// Пустая строка — следующей страницы нет.
func NextCursor(header string) string {
	if header == "" {
		return ""
	}
	next, ok := ParseLinkHeader(header)["next"]
	if !ok {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return u.Query().Get("after")
}
