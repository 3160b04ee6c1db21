// Package reconcile classifies provider submissions against the canonical
// catalog and applies the resulting creates, identifier attachments and
// field patches.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/aggregate"
	"github.com/litcat/litrec/internal/changes"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/logging"
	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
	"github.com/litcat/litrec/internal/submission"
	"github.com/litcat/litrec/internal/xref"
)

// DefaultBatchSize is the number of records committed per transaction.
const DefaultBatchSize = 250

// DefaultIndexProvider names the literature index that owns biblio fields of
// references carrying a PMID.
const DefaultIndexProvider = "PubMed"

// Provider identifies a submitting organization and the identifier prefix it
// mints.
type Provider struct {
	Name   string `json:"name" yaml:"name"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// Options configures an Engine.
type Options struct {
	BatchSize     int
	IndexProvider string

	// Providers lists every known provider; used to decide biblio ownership.
	Providers []Provider

	// ReaggregateUnchanged processes records whose content hash did not change.
	ReaggregateUnchanged bool

	Hashes  changes.HashStore // defaults to the database
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Engine runs reconciliation against one database.
type Engine struct {
	db       *storage.DB
	detector *changes.Detector
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// New returns an Engine.
func New(db *storage.DB, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.IndexProvider == "" {
		opts.IndexProvider = DefaultIndexProvider
	}
	if opts.Hashes == nil {
		opts.Hashes = db
	}
	return &Engine{
		db:       db,
		detector: changes.NewDetector(opts.Hashes),
		opts:     opts,
		log:      logging.OrNop(opts.Logger),
		now:      time.Now,
	}
}

// run holds the state of one provider run.
type run struct {
	e         *Engine
	actor     string
	provider  Provider
	graph     *xref.Graph
	resources map[string]bool
	report    *Report
	log       *zap.Logger
}

// Run reconciles one provider's batch. Record-level problems are listed in
// the report; the returned error is reserved for failures that stop the run.
func (e *Engine) Run(ctx context.Context, actor string, p Provider, records []submission.Record) (*Report, error) {
	if actor == "" {
		return nil, storage.ErrMissingActor
	}

	report := &Report{
		RunID:       uuid.NewString(),
		Provider:    p.Name,
		Actor:       actor,
		StartedAt:   e.now().UTC(),
		Conflicts:   []Conflict{},
		OutOfCorpus: []string{},
	}
	report.Stats.Received = len(records)
	log := e.log.With(zap.String("provider", p.Name), zap.String("run_id", report.RunID))

	rows, err := e.db.LoadCrossReferences(ctx)
	if err != nil {
		return e.finish(report, log), fmt.Errorf("loading identifier graph: %w", err)
	}
	resources, err := e.db.ResourceIdentifiers(ctx)
	if err != nil {
		return e.finish(report, log), err
	}
	r := &run{
		e:         e,
		actor:     actor,
		provider:  p,
		graph:     xref.Build(rows),
		resources: resources,
		report:    report,
		log:       log,
	}
	log.Info("run started", zap.Int("records", len(records)), zap.Int("identifiers", len(rows)))

	units, mentioned := screen(records)
	for start := 0; start < len(units); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(units))
		if err := r.batch(ctx, units[start:end]); err != nil {
			report.abort(err.Error())
			return e.finish(report, log), err
		}
		if report.Aborted {
			break
		}
	}

	if len(records) > 0 && !report.Aborted {
		if err := r.sweep(ctx, mentioned); err != nil {
			report.Add(fmt.Errorf("out-of-corpus sweep: %w", err))
		}
	}
	return e.finish(report, log), nil
}

func (e *Engine) finish(report *Report, log *zap.Logger) *Report {
	report.FinishedAt = e.now().UTC()
	status := "ok"
	if report.Aborted {
		status = "aborted"
	}
	for _, c := range report.Conflicts {
		e.opts.Metrics.Conflict(report.Provider, string(c.Kind))
	}
	e.opts.Metrics.Run(report.Provider, status, report.FinishedAt.Sub(report.StartedAt), len(report.OutOfCorpus))
	log.Info("run finished",
		zap.String("status", status),
		zap.Int("created", report.Stats.Created),
		zap.Int("updated", report.Stats.Updated),
		zap.Int("unchanged", report.Stats.Unchanged),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int("out_of_corpus", len(report.OutOfCorpus)))
	return report
}

// batch processes units inside one transaction, each unit in its own
// savepoint. Content hashes are stored only after the transaction commits.
func (r *run) batch(ctx context.Context, units []screened) error {
	// Hash lookups go through the database handle, so they happen before the
	// transaction takes the connection.
	changed := make([]bool, len(units))
	for i, u := range units {
		if u.outcome != "" || r.e.opts.ReaggregateUnchanged {
			changed[i] = true
			continue
		}
		c, err := r.e.detector.HasChanged(ctx, r.provider.Name, u.rec.Primary.Curie(), u.rec)
		if err != nil {
			r.log.Warn("hash lookup failed, treating record as changed", zap.Error(err))
			c = true
		}
		changed[i] = c
	}

	// Cancellation stops the batch between records; work already done in the
	// batch still commits.
	txCtx := context.WithoutCancel(ctx)
	tx, err := r.e.db.Begin(txCtx)
	if err != nil {
		return err
	}
	mark := r.graph.Mark()

	type pending struct{ externalID, hash string }
	var hashes []pending
	var outcomes []Outcome

	for i, u := range units {
		if err := ctx.Err(); err != nil {
			r.report.abort("cancelled: " + err.Error())
			break
		}

		if u.outcome != "" {
			if u.err != nil {
				r.report.Add(u.err)
				r.log.Warn("record rejected", zap.String("subject", u.rec.Primary.Curie()), zap.Error(u.err))
			}
			outcomes = append(outcomes, u.outcome)
			continue
		}
		if !changed[i] {
			outcomes = append(outcomes, OutcomeUnchanged)
			continue
		}

		outcome := r.unit(txCtx, tx, u.rec, i)
		outcomes = append(outcomes, outcome)
		switch outcome {
		case OutcomeCreated, OutcomeUpdated, OutcomeMatched:
			hashes = append(hashes, pending{u.rec.Primary.Curie(), u.fingerprint})
		}
	}

	if err := tx.Commit(); err != nil {
		r.graph.RollbackTo(mark)
		return err
	}
	for _, o := range outcomes {
		r.report.count(o)
		r.e.opts.Metrics.Record(r.provider.Name, string(o))
	}
	for _, h := range hashes {
		if err := r.e.detector.CommitHash(txCtx, r.provider.Name, h.externalID, h.hash); err != nil {
			// The record is reprocessed next run; nothing is lost.
			r.log.Warn("storing content hash failed", zap.String("subject", h.externalID), zap.Error(err))
		}
	}
	return nil
}

// unit reconciles one record inside a savepoint.
func (r *run) unit(ctx context.Context, tx *storage.Tx, rec *submission.Record, seq int) Outcome {
	mark := r.graph.Mark()
	var outcome Outcome
	var notes []error

	err := tx.Savepoint(ctx, fmt.Sprintf("unit_%d", seq), func() error {
		var err error
		outcome, notes, err = r.reconcile(ctx, tx, rec)
		return err
	})
	for _, n := range notes {
		r.report.Add(n)
	}
	if err == nil {
		return outcome
	}

	r.graph.RollbackTo(mark)
	r.report.Add(err)
	if _, ok := conflict.KindOf(err); ok {
		r.log.Warn("record not applied", zap.String("subject", rec.Primary.Curie()), zap.Error(err))
		if errors.Is(err, conflict.ErrMultiCanonicalMatch) {
			return OutcomeMulti
		}
		if errors.Is(err, conflict.ErrResourceIdentifierReserved) {
			return OutcomeSkipped
		}
		return OutcomeRejected
	}
	r.log.Error("record failed", zap.String("subject", rec.Primary.Curie()), zap.Error(err))
	return OutcomeFailed
}

// reconcile classifies rec and applies it. notes are conflicts that did not
// stop the record; a non-nil error rolls the record back.
func (r *run) reconcile(ctx context.Context, tx *storage.Tx, rec *submission.Record) (Outcome, []error, error) {
	ids := rec.AllIdentifiers()

	ownerList := r.owners(ids, r.graph.ResolveAll)
	if len(ownerList) == 0 {
		// Identifiers retired by an earlier sweep still point at their
		// reference.
		ownerList = r.owners(ids, r.graph.ResolveRetired)
	}

	switch len(ownerList) {
	case 0:
		return r.create(ctx, tx, rec, ids)
	case 1:
		return r.update(ctx, tx, rec, ids, ownerList[0])
	default:
		curies := make([]string, 0, len(ownerList))
		for _, o := range ownerList {
			ref, err := tx.GetReference(ctx, o)
			if err != nil {
				return OutcomeFailed, nil, err
			}
			curies = append(curies, ref.Curie)
		}
		return OutcomeMulti, nil, conflict.New(conflict.MultiCanonicalMatch, rec.Primary.Curie(),
			"identifiers resolve to %d canonical references", len(curies)).WithCuries(curies...)
	}
}

// owners returns the distinct references resolve finds for ids, in first-seen
// order.
func (r *run) owners(ids []reference.Identifier, resolve func(reference.Identifier) []int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, id := range ids {
		for _, o := range resolve(id) {
			if !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
		}
	}
	return out
}

func (r *run) create(ctx context.Context, tx *storage.Tx, rec *submission.Record, ids []reference.Identifier) (Outcome, []error, error) {
	if r.resources[rec.Primary.Key()] {
		return OutcomeSkipped, nil, conflict.New(conflict.ResourceIdentifierReserved, rec.Primary.Curie(),
			"identifier belongs to a resource, not a publication")
	}

	ref, err := tx.CreateReference(ctx, r.actor, reference.Biblio{})
	if err != nil {
		return OutcomeFailed, nil, err
	}
	for _, id := range ids {
		if err := r.graph.Attach(ctx, tx, r.actor, ref.ID, id); err != nil {
			return OutcomeFailed, nil, err
		}
	}

	_, notes, err := r.aggregate(ctx, tx, rec, &ref, aggregate.Regime{
		Provider:    r.provider.Name,
		Biblio:      true,
		PerProvider: true,
	})
	if err != nil {
		return OutcomeFailed, notes, err
	}
	r.log.Debug("reference created", zap.String("curie", ref.Curie), zap.String("subject", rec.Primary.Curie()))
	return OutcomeCreated, notes, nil
}

func (r *run) update(ctx context.Context, tx *storage.Tx, rec *submission.Record, ids []reference.Identifier, owner int64) (Outcome, []error, error) {
	ref, err := tx.GetReference(ctx, owner)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	var attach []reference.Identifier
	var notes []error
	for _, id := range ids {
		already, err := r.graph.CheckAttach(owner, id)
		if already {
			continue
		}
		var ce *conflict.Error
		if errors.As(err, &ce) && ce.Kind == conflict.PrefixConflictAgainstCanonical {
			if r.graph.IsObsolete(owner, id) {
				// A retired value the provider still sends; keep the current one.
				notes = append(notes, conflict.New(conflict.ObsoleteIdentifier, rec.Primary.Curie(),
					"%s is obsolete on the canonical record: %s", id.Curie(), ce.Detail).WithCuries(ref.Curie))
				continue
			}
			ce.Subject = rec.Primary.Curie()
			ce.Detail = fmt.Sprintf("%s conflicts: %s", id.Curie(), ce.Detail)
			return OutcomeRejected, nil, ce.WithCuries(ref.Curie)
		}
		if err != nil {
			return OutcomeFailed, nil, err
		}
		attach = append(attach, id)
	}

	for _, id := range attach {
		if err := r.graph.Attach(ctx, tx, r.actor, owner, id); err != nil {
			return OutcomeFailed, nil, err
		}
	}

	regime := aggregate.Regime{
		Provider:    r.provider.Name,
		PerProvider: r.provider.Prefix != "" && r.graph.HasPrefix(owner, r.provider.Prefix),
	}
	biblioOwner, err := aggregate.BiblioOwner(r.graph.HasPrefix(owner, reference.PrefixPMID),
		r.e.opts.IndexProvider, r.claimants(owner))
	if err != nil {
		var ce *conflict.Error
		if errors.As(err, &ce) {
			ce.Subject = rec.Primary.Curie()
			ce.WithCuries(ref.Curie)
		}
		notes = append(notes, err)
	}
	regime.Biblio = biblioOwner != "" && strings.EqualFold(biblioOwner, r.provider.Name)

	wrote, aggNotes, err := r.aggregate(ctx, tx, rec, ref, regime)
	notes = append(notes, aggNotes...)
	if err != nil {
		return OutcomeFailed, notes, err
	}
	if len(attach) > 0 || wrote {
		return OutcomeUpdated, notes, nil
	}
	return OutcomeMatched, notes, nil
}

// claimants returns the providers, other than the index, holding a valid
// identifier with their own prefix on the reference.
func (r *run) claimants(owner int64) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p Provider) {
		name := strings.ToLower(p.Name)
		if p.Prefix == "" || seen[name] || strings.EqualFold(p.Name, r.e.opts.IndexProvider) {
			return
		}
		seen[name] = true
		if r.graph.HasPrefix(owner, p.Prefix) {
			out = append(out, p.Name)
		}
	}
	for _, p := range r.e.opts.Providers {
		add(p)
	}
	add(r.provider)
	return out
}
