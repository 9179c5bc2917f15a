package affiliate

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	linkPattern   = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)
	shopeeHost    = regexp.MustCompile(`^(?:[a-z0-9-]+\.)*shopee\.(?:[a-z]{2,3})(?:\.[a-z]{2})?$`)
	trailingMarks = ".,;:!?)]}'\""
)

// FindLinks returns the http(s) URLs in text in order of appearance,
// without trailing punctuation. Duplicates are kept.
func FindLinks(text string) []string {
	matches := linkPattern.FindAllString(text, -1)

	links := make([]string, 0, len(matches))
	for _, match := range matches {
		link := strings.TrimRight(match, trailingMarks)
		if link != "" {
			links = append(links, link)
		}
	}

	return links
}

func IsShopee(rawURL string) bool {
	host := hostOf(rawURL)
	return isShortHost(host) || shopeeHost.MatchString(host)
}

// IsShortLink reports links that must be expanded before they can carry
// affiliate parameters: shp.ee and s.shopee.<tld>.
func IsShortLink(rawURL string) bool {
	return isShortHost(hostOf(rawURL))
}

func isShortHost(host string) bool {
	if host == "shp.ee" || strings.HasSuffix(host, ".shp.ee") {
		return true
	}
	return strings.HasPrefix(host, "s.shopee.") && shopeeHost.MatchString(host)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}
