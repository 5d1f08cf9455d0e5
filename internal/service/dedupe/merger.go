// Package dedupe collapses raw contacts from many sources into one
// canonical set keyed by identity, merging fields additively.
package dedupe

import (
	"github.com/octobees/leads-discovery/internal/entity"
)

// MergeOutcome describes what happened to a raw contact.
type MergeOutcome int

// Merge outcomes.
const (
	OutcomeDropped MergeOutcome = iota
	OutcomeCreated
	OutcomeMerged
)

// Merger owns a canonical contact set. It is not safe for concurrent use;
// a single run owns one Merger.
type Merger struct {
	contacts []*entity.Contact
	index    map[string]int
}

// NewMerger returns an empty canonical set.
func NewMerger() *Merger {
	return &Merger{index: make(map[string]int)}
}

// Len returns the number of canonical contacts.
func (m *Merger) Len() int {
	return len(m.contacts)
}

// Contacts exposes the canonical contacts in discovery order. The pointers
// stay owned by the Merger; callers may only set scores on them.
func (m *Merger) Contacts() []*entity.Contact {
	return m.contacts
}

// Snapshot returns deep copies of the canonical contacts in discovery order.
func (m *Merger) Snapshot() []entity.Contact {
	out := make([]entity.Contact, len(m.contacts))
	for i, c := range m.contacts {
		out[i] = c.Clone()
	}
	return out
}

// Merge folds a raw contact into the set. Contacts without any derivable
// identity are dropped.
func (m *Merger) Merge(raw entity.RawContact) MergeOutcome {
	raw = Canonicalize(raw)
	incoming := rawFields(raw)
	ids := identities(incoming)
	if len(ids) == 0 {
		return OutcomeDropped
	}

	for _, id := range ids {
		pos, ok := m.index[id.key]
		if !ok {
			continue
		}
		existing := m.contacts[pos]
		if conflicts(contactFields(existing), incoming, id) {
			continue
		}
		mergeInto(existing, raw)
		m.reindex(pos)
		return OutcomeMerged
	}

	c := &entity.Contact{
		Name:                raw.Name,
		Title:               raw.Title,
		Company:             raw.Company,
		Email:               raw.Email,
		Phone:               raw.Phone,
		Country:             raw.Country,
		Category:            raw.Category,
		Notes:               raw.Notes,
		Socials:             raw.Socials.Clone(),
		FollowersRaw:        raw.FollowersRaw,
		FollowersNormalized: NormalizeFollowers(raw.FollowersRaw),
		Source:              raw.Source,
	}
	if raw.Source != "" {
		c.Provenance = []string{raw.Source}
	}
	m.contacts = append(m.contacts, c)
	m.reindex(len(m.contacts) - 1)
	return OutcomeCreated
}

// reindex recomputes the identity key of the contact at pos and registers
// any alias not yet claimed by another contact.
func (m *Merger) reindex(pos int) {
	c := m.contacts[pos]
	ids := identities(contactFields(c))
	if len(ids) > 0 {
		c.IdentityKey = ids[0].key
	}
	for _, id := range ids {
		if _, taken := m.index[id.key]; !taken {
			m.index[id.key] = pos
		}
	}
}

// mergeInto applies the additive field policy: existing non-empty values
// win, empty ones adopt the new value, followers keep the larger count.
func mergeInto(dst *entity.Contact, src entity.RawContact) {
	fill(&dst.Name, src.Name)
	fill(&dst.Title, src.Title)
	fill(&dst.Company, src.Company)
	fill(&dst.Email, src.Email)
	fill(&dst.Phone, src.Phone)
	fill(&dst.Country, src.Country)
	fill(&dst.Category, src.Category)
	fill(&dst.Notes, src.Notes)

	for platform, handle := range src.Socials {
		if handle == "" || dst.Socials[platform] != "" {
			continue
		}
		if dst.Socials == nil {
			dst.Socials = entity.Socials{}
		}
		dst.Socials[platform] = handle
	}

	if n := NormalizeFollowers(src.FollowersRaw); n > dst.FollowersNormalized {
		dst.FollowersRaw = src.FollowersRaw
		dst.FollowersNormalized = n
	} else {
		fill(&dst.FollowersRaw, src.FollowersRaw)
	}

	if src.Source != "" {
		dst.Source = src.Source
		if !contains(dst.Provenance, src.Source) {
			dst.Provenance = append(dst.Provenance, src.Source)
		}
	}
}

func fill(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
