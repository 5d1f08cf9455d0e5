package dedupe

import (
	"strings"

	"github.com/octobees/leads-discovery/internal/entity"
)

type keyRank int

const (
	rankEmail keyRank = iota
	rankSocial
	rankName
)

type identity struct {
	key      string
	rank     keyRank
	platform entity.Platform
}

type identityFields struct {
	email   string
	socials entity.Socials
	name    string
	company string
}

func rawFields(c entity.RawContact) identityFields {
	return identityFields{email: c.Email, socials: c.Socials, name: c.Name, company: c.Company}
}

func contactFields(c *entity.Contact) identityFields {
	return identityFields{email: c.Email, socials: c.Socials, name: c.Name, company: c.Company}
}

// IdentityKey derives the canonical key of a contact: normalized e-mail,
// then the primary platform-qualified social handle, then the normalized
// (name, company) pair. An empty result means the contact has no identity.
func IdentityKey(c entity.RawContact) string {
	ids := identities(rawFields(c))
	if len(ids) == 0 {
		return ""
	}
	return ids[0].key
}

// identities lists every key the fields can be found under, highest priority first.
func identities(f identityFields) []identity {
	var out []identity
	if email := strings.ToLower(strings.TrimSpace(f.email)); email != "" {
		out = append(out, identity{key: "email:" + email, rank: rankEmail})
	}
	for _, platform := range entity.Platforms {
		handle := NormalizeHandle(platform, f.socials[platform])
		if handle == "" {
			continue
		}
		out = append(out, identity{key: string(platform) + ":" + handle, rank: rankSocial, platform: platform})
	}
	name := strings.ToLower(collapseSpaces(f.name))
	company := strings.ToLower(collapseSpaces(f.company))
	if name != "" {
		out = append(out, identity{key: "name:" + name + "|" + company, rank: rankName})
	}
	return out
}

// conflicts reports whether an existing contact carries a higher-priority
// identity that disagrees with the incoming one, in which case a match on
// a lower-priority key must not merge them.
func conflicts(existing, incoming identityFields, matched identity) bool {
	if matched.rank == rankEmail {
		return false
	}
	if differ(existing.email, incoming.email) {
		return true
	}
	for _, platform := range entity.Platforms {
		if matched.rank == rankSocial && platform == matched.platform {
			break
		}
		if differ(NormalizeHandle(platform, existing.socials[platform]), NormalizeHandle(platform, incoming.socials[platform])) {
			return true
		}
	}
	return false
}

func differ(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return a != "" && b != "" && a != b
}
