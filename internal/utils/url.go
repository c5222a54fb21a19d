package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>]+|\b(?:discord\.gg|discord(?:app)?\.com/invite)/[^\s<>]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

// ExtractURLs finds links in message content, including scheme-less www.
// links and Discord invites. Trailing punctuation is trimmed.
func ExtractURLs(content string) []string {
	matches := urlRegex.FindAllString(content, -1)
	for i, match := range matches {
		matches[i] = strings.TrimRight(match, ".,;:!?)]}>'\"")
	}
	return matches
}

// NormalizeURL returns the link without credentials, fragment or tracking
// parameters, and its host in lowercase ASCII form.
func NormalizeURL(raw string) (string, string, error) {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	asciiHost, err := idna.Lookup.ToASCII(host)
	if err == nil {
		host = asciiHost
	}

	parsed.Host = host
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = normalizeQuery(query)

	return parsed.String(), host, nil
}

func normalizeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clean := url.Values{}
	for _, key := range keys {
		clean[key] = values[key]
	}
	return clean.Encode()
}

// DomainSet normalizes domains into a lookup set for DomainMatch.
func DomainSet(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, domain := range list {
			domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "*.")
			if domain == "" {
				continue
			}
			if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
				domain = ascii
			}
			set[domain] = struct{}{}
		}
	}
	return set
}

// DomainMatch reports whether domain or any parent domain is in set, so an
// entry for example.com also covers cdn.example.com.
func DomainMatch(domain string, set map[string]struct{}) bool {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	for domain != "" {
		if _, ok := set[domain]; ok {
			return true
		}
		_, parent, found := strings.Cut(domain, ".")
		if !found {
			return false
		}
		domain = parent
	}
	return false
}
