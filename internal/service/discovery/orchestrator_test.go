package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/credits"
	"github.com/octobees/leads-discovery/internal/source"
)

type stubAdapter struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, req source.Request) ([]entity.RawContact, error)
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Discover(ctx context.Context, req source.Request) ([]entity.RawContact, error) {
	s.calls.Add(1)
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(ctx, req)
}

func returning(contacts ...entity.RawContact) func(context.Context, source.Request) ([]entity.RawContact, error) {
	return func(context.Context, source.Request) ([]entity.RawContact, error) {
		return contacts, nil
	}
}

func curators(n int, source string) []entity.RawContact {
	out := make([]entity.RawContact, n)
	for i := range out {
		raw := entity.RawContact{
			Name:     fmt.Sprintf("Curator %d", i),
			Country:  "ZA",
			Category: "playlist_curator",
			Source:   source,
		}
		if i%2 == 0 {
			raw.Email = fmt.Sprintf("curator%d@example.com", i)
		} else {
			raw.Socials = entity.Socials{entity.PlatformInstagram: fmt.Sprintf("curator%d", i)}
		}
		out[i] = raw
	}
	return out
}

type stubGate struct {
	mu       sync.Mutex
	balance  int
	debitErr error
	checks   int
	debits   []string
}

func (g *stubGate) CheckBalance(context.Context, entity.Principal) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	return g.balance, nil
}

func (g *stubGate) Debit(_ context.Context, _ entity.Principal, amount int, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.debitErr != nil {
		return g.debitErr
	}
	g.balance -= amount
	g.debits = append(g.debits, reason)
	return nil
}

func collect(ch <-chan entity.ProgressEvent) []entity.ProgressEvent {
	var events []entity.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func assertSingleTerminal(t *testing.T, events []entity.ProgressEvent) entity.ProgressEvent {
	t.Helper()
	require.NotEmpty(t, events)
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Terminal(), "terminal event before end of stream: %+v", ev)
	}
	last := events[len(events)-1]
	require.True(t, last.Terminal())
	return last
}

func quickBrief(target int) entity.SearchBrief {
	return entity.SearchBrief{
		ContactTypes: []string{"playlist_curator"},
		Markets:      []string{"ZA"},
		Depth:        entity.DepthQuick,
		TargetCount:  target,
	}
}

func TestRun_RejectsInvalidBriefWithoutRunningTiers(t *testing.T) {
	adapter := &stubAdapter{name: "directory", fn: returning(curators(3, "directory")...)}
	o := NewOrchestrator([]Tier{{Name: TierDirectory, Adapters: []source.Adapter{adapter}}}, nil, Config{})

	for _, brief := range []entity.SearchBrief{
		{Markets: []string{"ZA"}},
		{ContactTypes: []string{"dj"}},
		{ContactTypes: []string{"  "}, Markets: []string{"ZA"}},
	} {
		events := collect(o.Stream(context.Background(), brief, entity.Principal{ID: "u"}))
		require.Len(t, events, 1)
		assert.Equal(t, entity.EventError, events[0].Kind)
		assert.NotEmpty(t, events[0].Message)

		_, err := o.Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
		assert.True(t, eris.Is(err, entity.ErrInvalidBrief))
	}
	assert.Zero(t, adapter.calls.Load())
}

func TestRun_QuickDepthReturnsTopScoredContacts(t *testing.T) {
	directory := &stubAdapter{name: "directory", fn: returning(curators(8, "directory")...)}
	search := &stubAdapter{name: "web_search", fn: returning(curators(8, "web_search")...)}
	o := NewOrchestrator([]Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{directory}},
		{Name: TierWebSearch, Adapters: []source.Adapter{search}},
	}, nil, Config{})

	events := collect(o.Stream(context.Background(), quickBrief(5), entity.Principal{ID: "u"}))
	last := assertSingleTerminal(t, events)
	require.Equal(t, entity.EventComplete, last.Kind)
	require.Len(t, last.Contacts, 5)
	assert.Equal(t, 5, last.Total)
	for i, c := range last.Contacts {
		assert.Greater(t, c.MatchScore, 0.0)
		if i > 0 {
			assert.GreaterOrEqual(t, last.Contacts[i-1].MatchScore, c.MatchScore)
		}
	}
	// E-mail carrying curators score higher and win the cut.
	for _, c := range last.Contacts[:4] {
		assert.NotEmpty(t, c.Email)
	}
	assert.Zero(t, search.calls.Load())
}

func TestRun_TimedOutAdapterIsLoggedAndIgnored(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	slow := &stubAdapter{name: "slow", fn: func(context.Context, source.Request) ([]entity.RawContact, error) {
		<-release
		return curators(5, "slow"), nil
	}}
	good := &stubAdapter{name: "good", fn: returning(curators(3, "good")...)}
	o := NewOrchestrator([]Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{slow, good}},
	}, nil, Config{AdapterTimeout: 50 * time.Millisecond})

	events := collect(o.Stream(context.Background(), quickBrief(10), entity.Principal{ID: "u"}))
	last := assertSingleTerminal(t, events)
	require.Equal(t, entity.EventComplete, last.Kind)
	assert.Len(t, last.Contacts, 3)
	assert.Contains(t, last.Logs, "source slow timed out")
	for _, ev := range events {
		assert.NotEqual(t, entity.EventError, ev.Kind)
	}
}

func TestRun_FailedDebitSkipsCostedTier(t *testing.T) {
	directory := &stubAdapter{name: "directory", fn: returning(curators(2, "directory")...)}
	enrichment := &stubAdapter{name: "enrichment", fn: returning(curators(6, "enrichment")...)}
	gate := &stubGate{balance: 10, debitErr: errors.New("ledger unavailable")}
	o := NewOrchestrator([]Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{directory}},
		{Name: TierEnrichment, Adapters: []source.Adapter{enrichment}, CostWeight: 3},
	}, gate, Config{})

	brief := quickBrief(10)
	brief.Depth = entity.DepthFull
	events := collect(o.Stream(context.Background(), brief, entity.Principal{ID: "u"}))
	last := assertSingleTerminal(t, events)
	require.Equal(t, entity.EventComplete, last.Kind)
	assert.Len(t, last.Contacts, 2)
	assert.Contains(t, last.Logs, "skipped tier enrichment: ledger unavailable")
	assert.Zero(t, enrichment.calls.Load())

	var skipped bool
	for _, ev := range events {
		if ev.Kind == entity.EventProgress && ev.Status == entity.StatusSkipped {
			skipped = true
			assert.Equal(t, TierEnrichment, ev.Tier)
		}
	}
	assert.True(t, skipped)
}

func TestRun_InsufficientBalanceSkipsWithoutDebit(t *testing.T) {
	search := &stubAdapter{name: "web_search", fn: returning(curators(2, "web_search")...)}
	gate := &stubGate{balance: 0}
	o := NewOrchestrator([]Tier{{Name: TierWebSearch, Adapters: []source.Adapter{search}, CostWeight: 1}}, gate, Config{})

	res, err := o.Run(context.Background(), quickBrief(5), entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, gate.debits)
	assert.Zero(t, search.calls.Load())

	var found bool
	for _, line := range res.Logs {
		if strings.HasPrefix(line, "skipped tier web_search:") && strings.Contains(line, credits.ErrInsufficientCredits.Error()) {
			found = true
		}
	}
	assert.True(t, found, "logs: %v", res.Logs)
}

func TestRun_DebitsOncePerCostedTierAndSkipsExempt(t *testing.T) {
	newTiers := func() []Tier {
		return []Tier{
			{Name: TierDirectory, Adapters: []source.Adapter{&stubAdapter{name: "directory", fn: returning(curators(1, "directory")...)}}},
			{Name: TierWebSearch, Adapters: []source.Adapter{
				&stubAdapter{name: "a", fn: returning(curators(2, "a")...)},
				&stubAdapter{name: "b"},
			}, CostWeight: 1},
			{Name: TierEnrichment, Adapters: []source.Adapter{&stubAdapter{name: "enrichment"}}, CostWeight: 3},
		}
	}
	brief := quickBrief(50)
	brief.Depth = entity.DepthFull

	gate := &stubGate{balance: 10}
	_, err := NewOrchestrator(newTiers(), gate, Config{}).Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tier:web_search", "tier:enrichment"}, gate.debits)
	assert.Equal(t, 6, gate.balance)

	exemptGate := &stubGate{balance: 0}
	res, err := NewOrchestrator(newTiers(), exemptGate, Config{}).Run(context.Background(), brief, entity.Principal{ID: "admin", Exempt: true}, nil)
	require.NoError(t, err)
	assert.Zero(t, exemptGate.checks)
	assert.Equal(t, 2, res.Total)
}

func TestRun_StopsAtTargetAndFoundIsMonotonic(t *testing.T) {
	first := &stubAdapter{name: "directory", fn: returning(curators(2, "directory")...)}
	second := &stubAdapter{name: "web_search", fn: returning(curators(4, "web_search")...)}
	third := &stubAdapter{name: "enrichment", fn: returning(curators(8, "enrichment")...)}
	o := NewOrchestrator([]Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{first}},
		{Name: TierWebSearch, Adapters: []source.Adapter{second}},
		{Name: TierEnrichment, Adapters: []source.Adapter{third}},
	}, nil, Config{})

	brief := quickBrief(3)
	brief.Depth = entity.DepthFull
	events := collect(o.Stream(context.Background(), brief, entity.Principal{ID: "u"}))
	last := assertSingleTerminal(t, events)
	require.Equal(t, entity.EventComplete, last.Kind)
	assert.Len(t, last.Contacts, 3)
	assert.Zero(t, third.calls.Load())
	assert.Contains(t, last.Logs, "target of 3 reached")

	prev := 0
	var completes []string
	for _, ev := range events {
		if ev.Kind != entity.EventProgress {
			continue
		}
		assert.GreaterOrEqual(t, ev.Found, prev)
		assert.Equal(t, 3, ev.Target)
		prev = ev.Found
		if ev.Status == entity.StatusTierComplete {
			completes = append(completes, ev.Tier)
			assert.NotEmpty(t, ev.CurrentSource)
		}
	}
	assert.Equal(t, []string{TierDirectory, TierWebSearch}, completes)
}

func TestRun_StopsAfterTwoLowYieldTiers(t *testing.T) {
	tiers := []Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{&stubAdapter{name: "directory"}}, MinAcceptableYield: 1},
		{Name: TierWebSearch, Adapters: []source.Adapter{&stubAdapter{name: "web_search"}}, MinAcceptableYield: 1},
	}
	third := &stubAdapter{name: "enrichment", fn: returning(curators(1, "enrichment")...)}
	tiers = append(tiers, Tier{Name: TierEnrichment, Adapters: []source.Adapter{third}, MinAcceptableYield: 1})

	brief := quickBrief(5)
	brief.Depth = entity.DepthFull
	res, err := NewOrchestrator(tiers, nil, Config{}).Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Zero(t, third.calls.Load())
	assert.Contains(t, res.Logs, "stopping early: two consecutive tiers below minimum yield")
}

func TestRun_AdapterFailureDoesNotFailRun(t *testing.T) {
	broken := &stubAdapter{name: "broken", fn: func(context.Context, source.Request) ([]entity.RawContact, error) {
		return nil, errors.New("boom")
	}}
	panicking := &stubAdapter{name: "panicky", fn: func(context.Context, source.Request) ([]entity.RawContact, error) {
		panic("nil map")
	}}
	good := &stubAdapter{name: "good", fn: returning(
		entity.RawContact{Name: "A", Email: "a@example.com", Category: "playlist_curator", Country: "ZA"},
		entity.RawContact{Notes: "no identity at all"},
	)}
	o := NewOrchestrator([]Tier{{Name: TierDirectory, Adapters: []source.Adapter{broken, panicking, good}}}, nil, Config{})

	res, err := o.Run(context.Background(), quickBrief(5), entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "good", res.Contacts[0].Source)
	assert.Equal(t, []string{"good"}, res.Contacts[0].Provenance)
	assert.Contains(t, res.Logs, "source broken failed: boom")
	assert.Contains(t, res.Logs, "source good: dropped 1 contacts without identity")

	var panicLogged bool
	for _, line := range res.Logs {
		if strings.HasPrefix(line, "source panicky failed:") {
			panicLogged = true
		}
	}
	assert.True(t, panicLogged)
}

func TestRun_SeedsAreDetachedCopies(t *testing.T) {
	directory := &stubAdapter{name: "directory", fn: returning(curators(2, "directory")...)}
	var seen []entity.Contact
	enrich := &stubAdapter{name: "enrichment", fn: func(_ context.Context, req source.Request) ([]entity.RawContact, error) {
		seen = req.Seeds
		for i := range req.Seeds {
			req.Seeds[i].Name = "mutated"
			req.Seeds[i].Provenance = append(req.Seeds[i].Provenance, "mutated")
		}
		return nil, nil
	}}
	o := NewOrchestrator([]Tier{
		{Name: TierDirectory, Adapters: []source.Adapter{directory}},
		{Name: TierEnrichment, Adapters: []source.Adapter{enrich}},
	}, nil, Config{})

	brief := quickBrief(5)
	brief.Depth = entity.DepthDeep
	res, err := o.Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	for _, c := range res.Contacts {
		assert.NotEqual(t, "mutated", c.Name)
		assert.Equal(t, []string{"directory"}, c.Provenance)
	}
}

func TestRun_CancellationEmitsErrorAndDiscardsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	blocking := &stubAdapter{name: "blocking", fn: func(ctx context.Context, _ source.Request) ([]entity.RawContact, error) {
		close(started)
		<-ctx.Done()
		return curators(3, "blocking"), ctx.Err()
	}}
	o := NewOrchestrator([]Tier{{Name: TierDirectory, Adapters: []source.Adapter{blocking}}}, nil, Config{})

	events := o.Stream(ctx, quickBrief(5), entity.Principal{ID: "u"})
	<-started
	cancel()

	all := collect(events)
	last := assertSingleTerminal(t, all)
	assert.Equal(t, entity.EventError, last.Kind)
	assert.Equal(t, "search cancelled", last.Message)
	assert.Contains(t, last.Logs, "run cancelled")
}

func TestRun_LogsAreDistinctInEveryEvent(t *testing.T) {
	a := &stubAdapter{name: "dup", fn: func(context.Context, source.Request) ([]entity.RawContact, error) { return nil, errors.New("same") }}
	b := &stubAdapter{name: "dup", fn: func(context.Context, source.Request) ([]entity.RawContact, error) { return nil, errors.New("same") }}
	o := NewOrchestrator([]Tier{{Name: TierDirectory, Adapters: []source.Adapter{a, b}}}, nil, Config{})

	for _, ev := range collect(o.Stream(context.Background(), quickBrief(5), entity.Principal{ID: "u"})) {
		seen := map[string]bool{}
		for _, line := range ev.Logs {
			assert.False(t, seen[line], "duplicate log line %q", line)
			seen[line] = true
		}
	}
}

func TestRun_LogsTierTransitions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	directory := &stubAdapter{name: "directory", fn: returning(curators(1, "directory")...)}
	o := NewOrchestrator([]Tier{{Name: TierDirectory, Adapters: []source.Adapter{directory}}}, nil, Config{}, WithLogger(zap.New(core)))

	_, err := o.Run(context.Background(), quickBrief(5), entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("tier complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, TierDirectory, entries[0].ContextMap()["tier"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["found"])
}

func TestDefaultTiers(t *testing.T) {
	dir := &stubAdapter{name: "directory"}
	enrich := &stubAdapter{name: "enrichment"}
	tiers := DefaultTiers(TierConfig{
		Directory:          []source.Adapter{dir},
		Enrichment:         []source.Adapter{enrich},
		SearchCost:         1,
		EnrichmentCost:     3,
		MinAcceptableYield: 2,
	})
	require.Len(t, tiers, 2)
	assert.Equal(t, TierDirectory, tiers[0].Name)
	assert.False(t, tiers[0].Costed())
	assert.Equal(t, TierEnrichment, tiers[1].Name)
	assert.Equal(t, 3, tiers[1].CostWeight)
	assert.Equal(t, 2, tiers[1].MinAcceptableYield)
}

func TestDepthSelectsTierLevelsWhenMiddleTierMissing(t *testing.T) {
	newCascade := func() (*stubAdapter, []Tier) {
		enrich := &stubAdapter{name: "enrichment"}
		return enrich, DefaultTiers(TierConfig{
			Directory:          []source.Adapter{&stubAdapter{name: "directory", fn: returning(curators(2, "directory")...)}},
			Enrichment:         []source.Adapter{enrich},
			SearchCost:         1,
			EnrichmentCost:     3,
			MinAcceptableYield: 1,
		})
	}

	enrich, tiers := newCascade()
	assert.Equal(t, []int{1, 3}, []int{tiers[0].Level, tiers[1].Level})

	gate := &stubGate{balance: 10}
	brief := quickBrief(10)
	brief.Depth = entity.DepthDeep
	res, err := NewOrchestrator(tiers, gate, Config{}).Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Zero(t, enrich.calls.Load())
	assert.Empty(t, gate.debits)

	enrich, tiers = newCascade()
	gate = &stubGate{balance: 10}
	brief.Depth = entity.DepthFull
	_, err = NewOrchestrator(tiers, gate, Config{}).Run(context.Background(), brief, entity.Principal{ID: "u"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, enrich.calls.Load())
	assert.Equal(t, []string{"tier:enrichment"}, gate.debits)
}

func TestLogbook(t *testing.T) {
	l := NewLogbook()
	assert.True(t, l.Add("a"))
	assert.False(t, l.Add("a"))
	assert.True(t, l.Addf("tier %s started", "x"))
	assert.False(t, l.Add("tier x started"))

	snap := l.Snapshot()
	assert.Equal(t, []string{"a", "tier x started"}, snap)
	snap[0] = "changed"
	assert.Equal(t, "a", l.Snapshot()[0])
	assert.Equal(t, 2, l.Len())
}

func TestEmitter_DropsProgressButDeliversTerminal(t *testing.T) {
	e := NewEmitter(1)
	assert.True(t, e.Progress(entity.ProgressEvent{Kind: entity.EventProgress, Found: 1}))
	assert.False(t, e.Progress(entity.ProgressEvent{Kind: entity.EventProgress, Found: 2}))
	assert.Equal(t, int64(1), e.Dropped())

	done := make(chan error, 1)
	go func() {
		done <- e.Finish(context.Background(), entity.ProgressEvent{Kind: entity.EventComplete})
	}()

	events := collect(e.Events())
	require.NoError(t, <-done)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Found)
	assert.Equal(t, entity.EventComplete, events[1].Kind)

	assert.NoError(t, e.Finish(context.Background(), entity.ProgressEvent{Kind: entity.EventError}))
}

func TestEmitter_FinishGivesUpWhenConsumerIsGone(t *testing.T) {
	e := NewEmitter(1)
	e.Progress(entity.ProgressEvent{Kind: entity.EventProgress})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Finish(ctx, entity.ProgressEvent{Kind: entity.EventComplete})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var nilEmitter *Emitter
	assert.False(t, nilEmitter.Progress(entity.ProgressEvent{}))
	assert.NoError(t, nilEmitter.Finish(context.Background(), entity.ProgressEvent{}))
}
