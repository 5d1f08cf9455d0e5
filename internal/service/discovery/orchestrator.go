// Package discovery runs a search brief through a cascade of source tiers,
// merging and scoring what each tier finds and streaming progress as it goes.
package discovery

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/octobees/leads-discovery/internal/entity"
	"github.com/octobees/leads-discovery/internal/service/credits"
	"github.com/octobees/leads-discovery/internal/service/dedupe"
	"github.com/octobees/leads-discovery/internal/service/scoring"
	"github.com/octobees/leads-discovery/internal/source"
)

// DefaultAdapterTimeout bounds a single adapter call.
const DefaultAdapterTimeout = 15 * time.Second

// ErrCreditGateUnavailable is reported when a costed tier is reached without a gate.
var ErrCreditGateUnavailable = eris.New("credit gate unavailable")

// CreditGate meters costed tiers.
type CreditGate interface {
	CheckBalance(ctx context.Context, principal entity.Principal) (int, error)
	Debit(ctx context.Context, principal entity.Principal, amount int, reason string) error
}

// Config tunes an Orchestrator.
type Config struct {
	AdapterTimeout time.Duration
	EmitterBuffer  int
}

// Result is the final ranked outcome of a run.
type Result struct {
	Contacts []entity.Contact
	Total    int
	Logs     []string
}

// Orchestrator executes briefs against a fixed tier cascade. It holds no
// per-run state and may serve concurrent runs.
type Orchestrator struct {
	tiers  []Tier
	gate   CreditGate
	cfg    Config
	logger *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the global zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator builds an orchestrator over the given tiers.
func NewOrchestrator(tiers []Tier, gate CreditGate, cfg Config, opts ...Option) *Orchestrator {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.EmitterBuffer <= 0 {
		cfg.EmitterBuffer = DefaultEmitterBuffer
	}
	o := &Orchestrator{
		tiers:  append([]Tier(nil), tiers...),
		gate:   gate,
		cfg:    cfg,
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tiers returns the configured cascade.
func (o *Orchestrator) Tiers() []Tier {
	return append([]Tier(nil), o.tiers...)
}

// Stream runs the brief in its own goroutine and returns its event stream.
// The channel is closed after the terminal event.
func (o *Orchestrator) Stream(ctx context.Context, brief entity.SearchBrief, principal entity.Principal) <-chan entity.ProgressEvent {
	emitter := NewEmitter(o.cfg.EmitterBuffer)
	go func() {
		_, _ = o.Run(ctx, brief, principal, emitter)
	}()
	return emitter.Events()
}

// run holds the mutable state of one execution.
type run struct {
	brief     entity.SearchBrief
	principal entity.Principal
	emitter   *Emitter
	logs      *Logbook
	merger    *dedupe.Merger
}

// Run executes the brief, emitting progress on emitter (which may be nil),
// and returns the ranked contacts. It fails only for an invalid brief,
// cancellation or a fatal internal error; in every case exactly one terminal
// event is emitted.
func (o *Orchestrator) Run(ctx context.Context, brief entity.SearchBrief, principal entity.Principal, emitter *Emitter) (result *Result, err error) {
	r := &run{
		brief:     brief.Normalize(),
		principal: principal,
		emitter:   emitter,
		logs:      NewLogbook(),
		merger:    dedupe.NewMerger(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = eris.Errorf("discovery run panicked: %v", rec)
			o.fail(ctx, r, err)
		}
	}()

	if verr := r.brief.Validate(); verr != nil {
		r.logs.Addf("rejected brief: %v", verr)
		o.fail(ctx, r, verr)
		return nil, verr
	}

	tiers := o.selectTiers(r.brief.Depth)
	o.logger.Info("discovery run started",
		zap.String("principal", principal.ID),
		zap.String("depth", string(r.brief.Depth)),
		zap.Int("target", r.brief.TargetCount),
		zap.Int("tiers", len(tiers)),
	)

	lowYield := 0
	for i, tier := range tiers {
		if cerr := ctx.Err(); cerr != nil {
			return o.cancelled(ctx, r, cerr)
		}

		if tier.Costed() && !principal.Exempt {
			if cerr := o.charge(ctx, tier, principal); cerr != nil {
				if ctx.Err() != nil {
					return o.cancelled(ctx, r, ctx.Err())
				}
				r.logs.Addf("skipped tier %s: %v", tier.Name, cerr)
				o.logger.Warn("tier skipped", zap.String("tier", tier.Name), zap.Error(cerr))
				r.emitter.Progress(r.progress(tier.Name, entity.StatusSkipped, ""))
				continue
			}
		}

		r.logs.Addf("tier %s started", tier.Name)
		r.emitter.Progress(r.progress(tier.Name, entity.StatusStarted, ""))

		before := r.merger.Len()
		outcomes, last := o.runTier(ctx, tier, r)
		if cerr := ctx.Err(); cerr != nil {
			return o.cancelled(ctx, r, cerr)
		}

		if aerr := o.absorb(r, outcomes); aerr != nil {
			r.logs.Addf("fatal error: %v", aerr)
			o.fail(ctx, r, aerr)
			return nil, aerr
		}

		added := r.merger.Len() - before
		found := r.merger.Len()
		r.logs.Addf("tier %s complete: %d new, %d total", tier.Name, added, found)
		o.logger.Info("tier complete",
			zap.String("tier", tier.Name),
			zap.Int("added", added),
			zap.Int("found", found),
		)
		r.emitter.Progress(r.progress(tier.Name, entity.StatusTierComplete, last))

		if found >= r.brief.TargetCount {
			r.logs.Addf("target of %d reached", r.brief.TargetCount)
			break
		}
		if added < tier.MinAcceptableYield {
			lowYield++
		} else {
			lowYield = 0
		}
		if lowYield >= 2 && i < len(tiers)-1 {
			r.logs.Add("stopping early: two consecutive tiers below minimum yield")
			break
		}
	}

	contacts := ranked(r.merger, r.brief.TargetCount)
	result = &Result{Contacts: contacts, Total: len(contacts), Logs: r.logs.Snapshot()}
	o.logger.Info("discovery run complete", zap.String("principal", principal.ID), zap.Int("total", result.Total))

	_ = r.emitter.Finish(ctx, entity.ProgressEvent{
		Kind:     entity.EventComplete,
		Contacts: contacts,
		Total:    result.Total,
		Logs:     result.Logs,
	})
	return result, nil
}

func (o *Orchestrator) selectTiers(depth entity.SearchDepth) []Tier {
	limit := depth.TierLimit()
	selected := make([]Tier, 0, len(o.tiers))
	for i, t := range o.tiers {
		level := t.Level
		if level <= 0 {
			level = i + 1
		}
		if limit < 0 || level <= limit {
			selected = append(selected, t)
		}
	}
	return selected
}

// charge performs the check-then-debit for one costed tier.
func (o *Orchestrator) charge(ctx context.Context, tier Tier, principal entity.Principal) error {
	if o.gate == nil {
		return ErrCreditGateUnavailable
	}
	balance, err := o.gate.CheckBalance(ctx, principal)
	if err != nil {
		return err
	}
	if balance < tier.CostWeight {
		return eris.Wrapf(credits.ErrInsufficientCredits, "balance %d below cost %d", balance, tier.CostWeight)
	}
	return o.gate.Debit(ctx, principal, tier.CostWeight, "tier:"+tier.Name)
}

type adapterOutcome struct {
	name     string
	contacts []entity.RawContact
	err      error
	timedOut bool
	order    int64
}

// runTier fans the tier's adapters out and waits for all of them. Every
// task returns nil so one failure never cancels its siblings.
func (o *Orchestrator) runTier(ctx context.Context, tier Tier, r *run) ([]adapterOutcome, string) {
	seeds := ranked(r.merger, r.brief.TargetCount)
	outcomes := make([]adapterOutcome, len(tier.Adapters))

	var seq atomic.Int64
	g := new(errgroup.Group)
	for i, adapter := range tier.Adapters {
		req := source.Request{Brief: cloneBrief(r.brief), Seeds: cloneContacts(seeds)}
		g.Go(func() error {
			outcomes[i] = o.callAdapter(ctx, adapter, req)
			outcomes[i].order = seq.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	last := ""
	var lastOrder int64
	for _, out := range outcomes {
		if out.order > lastOrder {
			lastOrder = out.order
			last = out.name
		}
	}
	return outcomes, last
}

// callAdapter runs one adapter under its own deadline. An adapter that
// ignores its context is abandoned when the deadline passes.
func (o *Orchestrator) callAdapter(ctx context.Context, adapter source.Adapter, req source.Request) adapterOutcome {
	name := adapter.Name()
	actx, cancel := context.WithTimeout(ctx, o.cfg.AdapterTimeout)
	defer cancel()

	done := make(chan adapterOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- adapterOutcome{name: name, err: eris.Errorf("adapter panicked: %v", rec)}
			}
		}()
		contacts, err := adapter.Discover(actx, req)
		done <- adapterOutcome{name: name, contacts: contacts, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			out.timedOut = true
		}
		return out
	case <-actx.Done():
		return adapterOutcome{
			name:     name,
			err:      actx.Err(),
			timedOut: ctx.Err() == nil,
		}
	}
}

// absorb merges the tier's results into the canonical set and rescores it.
// A panic here is fatal for the run and comes back as an error.
func (o *Orchestrator) absorb(r *run, outcomes []adapterOutcome) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("merge failed: %v", rec)
		}
	}()

	for _, out := range outcomes {
		switch {
		case out.timedOut:
			r.logs.Addf("source %s timed out", out.name)
			o.logger.Warn("source timed out", zap.String("source", out.name), zap.Duration("timeout", o.cfg.AdapterTimeout))
			continue
		case out.err != nil:
			r.logs.Addf("source %s failed: %v", out.name, out.err)
			o.logger.Warn("source failed", zap.String("source", out.name), zap.Error(out.err))
			continue
		}

		dropped := 0
		for _, raw := range out.contacts {
			if raw.Source == "" {
				raw.Source = out.name
			}
			if r.merger.Merge(raw) == dedupe.OutcomeDropped {
				dropped++
			}
		}
		r.logs.Addf("source %s returned %d contacts", out.name, len(out.contacts))
		if dropped > 0 {
			r.logs.Addf("source %s: dropped %d contacts without identity", out.name, dropped)
		}
	}

	scoring.Score(r.merger.Contacts(), r.brief)
	return nil
}

func (o *Orchestrator) cancelled(ctx context.Context, r *run, cause error) (*Result, error) {
	r.logs.Add("run cancelled")
	o.logger.Info("discovery run cancelled", zap.String("principal", r.principal.ID), zap.Error(cause))
	o.fail(ctx, r, cause)
	return nil, cause
}

func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) {
	_ = r.emitter.Finish(ctx, entity.ProgressEvent{
		Kind:    entity.EventError,
		Message: errorMessage(cause),
		Logs:    r.logs.Snapshot(),
	})
}

func (r *run) progress(tier, status, currentSource string) entity.ProgressEvent {
	return entity.ProgressEvent{
		Kind:          entity.EventProgress,
		Tier:          tier,
		Status:        status,
		Found:         r.merger.Len(),
		Target:        r.brief.TargetCount,
		CurrentSource: currentSource,
		Logs:          r.logs.Snapshot(),
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "search cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "search deadline exceeded"
	case eris.Is(err, entity.ErrInvalidBrief):
		return err.Error()
	default:
		return "search failed: " + err.Error()
	}
}

// ranked returns copies of the best n contacts: highest score first, ties
// kept in discovery order.
func ranked(m *dedupe.Merger, n int) []entity.Contact {
	all := m.Snapshot()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].MatchScore > all[j].MatchScore
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func cloneContacts(in []entity.Contact) []entity.Contact {
	out := make([]entity.Contact, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func cloneBrief(b entity.SearchBrief) entity.SearchBrief {
	b.ContactTypes = append([]string(nil), b.ContactTypes...)
	b.Markets = append([]string(nil), b.Markets...)
	return b
}
