package entity

// Platform identifies a social network a contact can be reached on.
type Platform string

// Supported social platforms, in identity priority order.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformWebsite   Platform = "website"
)

// Platforms lists every supported platform in identity priority order.
var Platforms = []Platform{
	PlatformInstagram,
	PlatformTikTok,
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformWebsite,
}

// Socials maps a platform to a handle or profile URL.
type Socials map[Platform]string

// Clone returns an independent copy of the mapping.
func (s Socials) Clone() Socials {
	if s == nil {
		return nil
	}
	out := make(Socials, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RawContact is a lead exactly as one source produced it: no score, no merge history.
type RawContact struct {
	Name         string  `json:"name,omitempty"`
	Title        string  `json:"title,omitempty"`
	Company      string  `json:"company,omitempty"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Country      string  `json:"country,omitempty"`
	Category     string  `json:"category,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	Socials      Socials `json:"socials,omitempty"`
	FollowersRaw string  `json:"followersRaw,omitempty"`
	Source       string  `json:"source"`
}

// Contact is the canonical, deduplicated form of a discovered lead.
type Contact struct {
	IdentityKey         string   `json:"identityKey"`
	Name                string   `json:"name,omitempty"`
	Title               string   `json:"title,omitempty"`
	Company             string   `json:"company,omitempty"`
	Email               string   `json:"email,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Country             string   `json:"country,omitempty"`
	Category            string   `json:"category,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	Socials             Socials  `json:"socials,omitempty"`
	FollowersRaw        string   `json:"followersRaw,omitempty"`
	FollowersNormalized int64    `json:"followersNormalized"`
	MatchScore          float64  `json:"matchScore"`
	Source              string   `json:"source"`
	Provenance          []string `json:"provenance"`
}

// Clone returns a deep copy so callers can hand the contact out without sharing maps or slices.
func (c Contact) Clone() Contact {
	out := c
	out.Socials = c.Socials.Clone()
	if c.Provenance != nil {
		out.Provenance = append([]string(nil), c.Provenance...)
	}
	return out
}

// Raw projects a canonical contact back into the raw shape, used to seed enrichment.
func (c Contact) Raw() RawContact {
	return RawContact{
		Name:         c.Name,
		Title:        c.Title,
		Company:      c.Company,
		Email:        c.Email,
		Phone:        c.Phone,
		Country:      c.Country,
		Category:     c.Category,
		Notes:        c.Notes,
		Socials:      c.Socials.Clone(),
		FollowersRaw: c.FollowersRaw,
		Source:       c.Source,
	}
}

// HasSocial reports whether at least one platform handle is present.
func (c Contact) HasSocial() bool {
	for _, v := range c.Socials {
		if v != "" {
			return true
		}
	}
	return false
}
