package dedupe

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"

	"github.com/octobees/leads-discovery/internal/entity"
)

var (
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.-]+\.[a-z]{2,}$`)
	idnaProfile  = idna.Lookup
	spaceRun     = regexp.MustCompile(`\s+`)
)

var platformHosts = map[string]entity.Platform{
	"instagram.com": entity.PlatformInstagram,
	"tiktok.com":    entity.PlatformTikTok,
	"twitter.com":   entity.PlatformTwitter,
	"x.com":         entity.PlatformTwitter,
	"linkedin.com":  entity.PlatformLinkedIn,
}

// Canonicalize cleans a raw contact before it is merged: strings are
// trimmed, e-mails lower-cased and validated, phones formatted as E.164
// when parseable for the contact's country, and social handles reduced to
// their bare form.
func Canonicalize(raw entity.RawContact) entity.RawContact {
	out := entity.RawContact{
		Name:         collapseSpaces(raw.Name),
		Title:        collapseSpaces(raw.Title),
		Company:      collapseSpaces(raw.Company),
		Email:        NormalizeEmail(raw.Email),
		Country:      strings.ToUpper(strings.TrimSpace(raw.Country)),
		Category:     strings.ToLower(strings.TrimSpace(raw.Category)),
		Notes:        strings.TrimSpace(raw.Notes),
		FollowersRaw: strings.TrimSpace(raw.FollowersRaw),
		Source:       strings.TrimSpace(raw.Source),
	}
	out.Phone = NormalizePhone(raw.Phone, out.Country)

	for platform, value := range raw.Socials {
		handle := NormalizeHandle(platform, value)
		if handle == "" {
			continue
		}
		if out.Socials == nil {
			out.Socials = entity.Socials{}
		}
		out.Socials[platform] = handle
	}
	return out
}

// NormalizeEmail lower-cases and trims an address, returning "" when it is
// not a plausible e-mail. Internationalized domains come back punycoded.
func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	email = strings.TrimPrefix(email, "mailto:")
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	local, domain := email[:at], email[at+1:]
	if !isDomainValid(domain) {
		return ""
	}
	ascii, err := idnaProfile.ToASCII(domain)
	if err != nil || ascii == "" {
		return ""
	}
	email = local + "@" + ascii
	if !emailPattern.MatchString(email) {
		return ""
	}
	return email
}

// NormalizePhone formats a number as E.164 using the country as default region.
// Numbers libphonenumber cannot validate are kept as trimmed input.
func NormalizePhone(raw, country string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	region := strings.ToUpper(strings.TrimSpace(country))
	if len(region) != 2 {
		region = "ZZ"
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return raw
	}
	if !phonenumbers.IsValidNumber(number) {
		return raw
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// NormalizeHandle reduces a handle or profile URL to a lower-cased bare
// identifier: "@SomeUser" and "https://instagram.com/someuser/" both become
// "someuser"; websites become their host without "www.".
func NormalizeHandle(platform entity.Platform, raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}

	if platform == entity.PlatformWebsite {
		return websiteHost(value)
	}

	if looksLikeURL(value) {
		u, err := parseLooseURL(value)
		if err != nil {
			return ""
		}
		segments := pathSegments(u.Path)
		if len(segments) == 0 {
			return ""
		}
		if platform == entity.PlatformLinkedIn {
			value = segments[len(segments)-1]
		} else {
			value = segments[0]
		}
	}

	value = strings.TrimLeft(value, "@")
	value = strings.Trim(value, "/ ")
	return value
}

// PlatformForHost maps a profile URL host to its platform.
func PlatformForHost(host string) (entity.Platform, bool) {
	host = strings.ToLower(strings.Trim(strings.TrimSpace(host), "."))
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	for domain, platform := range platformHosts {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return platform, true
		}
	}
	return "", false
}

func websiteHost(value string) string {
	u, err := parseLooseURL(value)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if strings.Count(host, ".") == 0 {
		return ""
	}
	return host
}

func looksLikeURL(value string) bool {
	if strings.Contains(value, "://") {
		return true
	}
	if i := strings.Index(value, "/"); i > 0 {
		_, ok := PlatformForHost(value[:i])
		return ok
	}
	return false
}

func parseLooseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func pathSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isDomainValid(domain string) bool {
	if strings.Count(domain, ".") == 0 {
		return false
	}
	for _, part := range strings.Split(domain, ".") {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return false
		}
	}
	return true
}

func collapseSpaces(value string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(value, " "))
}
