package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

// whitespaceRun covers ASCII whitespace including \v, every Zs space
// (NBSP among them), U+2028, U+2029 and the BOM.
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)

// FormatLocation turns a city and state into the site's location slug:
// "New York", "NY" → "new-york-ny".
func FormatLocation(city, state string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(city+"-"+state), "-")
}

// SearchURL builds the search results URL for a city and state under baseURL.
func SearchURL(baseURL, city, state string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(FormatLocation(city, state)) + "/"
}
