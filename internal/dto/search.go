package dto

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/octobees/leads-discovery/internal/entity"
)

// SearchParams holds the raw query parameters of GET /search/stream.
type SearchParams struct {
	ContactTypes  string
	Markets       string
	Genre         string
	SearchDepth   string
	TargetCount   string
	Query         string
	CorrelationID string
}

// SearchLimits bounds what a caller may ask for.
type SearchLimits struct {
	DefaultTargetCount int
	MaxTargetCount     int
}

// Brief validates the parameters and converts them into a normalized brief.
// Every failure wraps entity.ErrInvalidBrief.
func (p SearchParams) Brief(limits SearchLimits) (entity.SearchBrief, error) {
	depth, err := entity.ParseSearchDepth(p.SearchDepth)
	if err != nil {
		return entity.SearchBrief{}, err
	}

	target := limits.DefaultTargetCount
	if raw := strings.TrimSpace(p.TargetCount); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return entity.SearchBrief{}, eris.Wrapf(entity.ErrInvalidBrief, "targetCount must be a positive integer, got %q", raw)
		}
		target = n
	}
	if limits.MaxTargetCount > 0 && target > limits.MaxTargetCount {
		target = limits.MaxTargetCount
	}

	brief := entity.SearchBrief{
		ContactTypes: entity.SplitList(p.ContactTypes),
		Markets:      entity.SplitList(p.Markets),
		Genre:        p.Genre,
		Depth:        depth,
		TargetCount:  target,
		Query:        p.Query,
	}.Normalize()

	if err := brief.Validate(); err != nil {
		return entity.SearchBrief{}, err
	}
	return brief, nil
}

// ProgressFrame is the wire shape of a progress event.
type ProgressFrame struct {
	Kind          entity.EventKind `json:"kind"`
	Tier          string           `json:"tier"`
	Status        string           `json:"status"`
	Found         int              `json:"found"`
	Target        int              `json:"target"`
	CurrentSource string           `json:"currentSource,omitempty"`
	Logs          []string         `json:"logs"`
}

// CompleteFrame is the wire shape of the success terminal event. Contacts is
// always an array, never null.
type CompleteFrame struct {
	Kind     entity.EventKind `json:"kind"`
	Contacts []entity.Contact `json:"contacts"`
	Total    int              `json:"total"`
	Logs     []string         `json:"logs"`
}

// ErrorFrame is the wire shape of the failure terminal event.
type ErrorFrame struct {
	Kind    entity.EventKind `json:"kind"`
	Message string           `json:"message"`
	Logs    []string         `json:"logs"`
}

// Frame maps an event to its kind-specific wire shape.
func Frame(ev entity.ProgressEvent) any {
	logs := ev.Logs
	if logs == nil {
		logs = []string{}
	}
	switch ev.Kind {
	case entity.EventComplete:
		contacts := ev.Contacts
		if contacts == nil {
			contacts = []entity.Contact{}
		}
		return CompleteFrame{Kind: ev.Kind, Contacts: contacts, Total: ev.Total, Logs: logs}
	case entity.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "search failed"
		}
		return ErrorFrame{Kind: ev.Kind, Message: msg, Logs: logs}
	default:
		return ProgressFrame{
			Kind:          entity.EventProgress,
			Tier:          ev.Tier,
			Status:        ev.Status,
			Found:         ev.Found,
			Target:        ev.Target,
			CurrentSource: ev.CurrentSource,
			Logs:          logs,
		}
	}
}

// BalanceResponse is returned by the credit balance endpoints.
type BalanceResponse struct {
	PrincipalID string `json:"principalId"`
	Balance     int    `json:"balance"`
	Exempt      bool   `json:"exempt"`
}
