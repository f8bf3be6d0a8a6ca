// Package pipeline runs the inbox through classification and relocation in
// fixed-size batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/flatdrop/internal/analyze"
	"github.com/TobiSchelling/flatdrop/internal/chunk"
	"github.com/TobiSchelling/flatdrop/internal/clean"
	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/fingerprint"
	"github.com/TobiSchelling/flatdrop/internal/logger"
	"github.com/TobiSchelling/flatdrop/internal/relocate"
	"github.com/TobiSchelling/flatdrop/internal/source"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

// Stage names the step at which a document failed.
type Stage string

const (
	StageRead    Stage = "read"
	StageWrite   Stage = "write"
	StageArchive Stage = "archive"
)

// DocumentError is a failure confined to one document. The batch goes on.
type DocumentError struct {
	Key   string
	Stage Stage
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID   string
	Steps   []StepResult
	Summary Summary
}

// Options tune one run.
type Options struct {
	DryRun bool
	// Limit caps the number of new documents processed; 0 means no cap.
	Limit int
	// BatchSize overrides ingest.batch_size when positive.
	BatchSize int
}

// Deps are the collaborators shared across runs.
type Deps struct {
	Router *triage.Router
	Store  fingerprint.Store
	// Ledger is optional.
	Ledger *database.DB
	Now    func() time.Time
}

// Plan is the partition of the inbox before a run.
type Plan struct {
	Fresh []source.Document
	Seen  []source.Document
}

// Orchestrator is not safe for concurrent runs against the same inbox.
type Orchestrator struct {
	cfg      *config.Config
	analyzer *analyze.Analyzer
	cleaner  *clean.Cleaner
	chunker  *chunk.Chunker
	router   *triage.Router
	store    fingerprint.Store
	ledger   *database.DB
	now      func() time.Time
	log      *logger.Logger
}

// New builds the per-document stages from cfg.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline needs a fingerprint store")
	}
	a, err := analyze.New(cfg)
	if err != nil {
		return nil, err
	}
	cl, err := clean.New(cfg.Cleaning.ArtifactPatterns)
	if err != nil {
		return nil, err
	}
	ch, err := chunk.New(cfg.Chunking, a)
	if err != nil {
		return nil, err
	}
	router := deps.Router
	if router == nil {
		if router, err = triage.NewRouter(cfg.Routing); err != nil {
			return nil, err
		}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:      cfg,
		analyzer: a,
		cleaner:  cl,
		chunker:  ch,
		router:   router,
		store:    deps.Store,
		ledger:   deps.Ledger,
		now:      now,
		log:      logger.Named("pipeline"),
	}, nil
}

// Analyzer exposes the analyzer used for every fragment.
func (o *Orchestrator) Analyzer() *analyze.Analyzer {
	return o.analyzer
}

// Plan discovers inbox documents and splits them by fingerprint.
func (o *Orchestrator) Plan() (Plan, error) {
	docs, err := source.Discover(o.cfg.VaultRoot(), o.cfg.InboxDir(), o.cfg.Ingest.Extensions)
	if err != nil {
		return Plan{}, err
	}
	var p Plan
	for _, d := range docs {
		if fingerprint.Unchanged(o.store, d.Key, d.Fingerprint()) {
			p.Seen = append(p.Seen, d)
		} else {
			p.Fresh = append(p.Fresh, d)
		}
	}
	return p, nil
}

// Run processes every new or changed document. Cancellation is honoured
// between batches; the returned Result always describes the work done.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now()
	stamp := start.Format("20060102_150405")
	r := &Result{RunID: uuid.NewString()}
	sum := &r.Summary
	sum.RunID = r.RunID
	sum.StartedAt = start.Format(time.RFC3339)
	sum.DryRun = opts.DryRun
	sum.Dispositions = triage.Summary{}

	log := o.log.With().Str("run", r.RunID).Logger()

	plan, err := o.Plan()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Discover", Err: err})
		return r, err
	}
	fresh := plan.Fresh
	if opts.Limit > 0 && len(fresh) > opts.Limit {
		fresh = fresh[:opts.Limit]
	}
	sum.Discovered = len(plan.Fresh) + len(plan.Seen)
	sum.New = len(fresh)
	sum.AlreadyProcessed = len(plan.Seen)
	sum.ByType = source.CountByType(fresh)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Discover",
		Summary: fmt.Sprintf("%d documents: %d new or changed, %d already processed", sum.Discovered, len(plan.Fresh), len(plan.Seen)),
	})

	if len(fresh) == 0 && len(plan.Seen) == 0 {
		log.Info().Msg("inbox is empty")
		sum.FinishedAt = o.now().Format(time.RFC3339)
		return r, nil
	}

	if !opts.DryRun && len(fresh) > 0 && o.cfg.Ingest.Backup {
		dest := filepath.Join(o.cfg.BackupsDir(), "pre_relocation_"+stamp)
		if err := Backup(o.cfg.InboxDir(), dest); err != nil {
			err = fmt.Errorf("backing up inbox: %w", err)
			r.Steps = append(r.Steps, StepResult{Name: "Backup", Err: err})
			return r, err
		}
		sum.BackupPath = dest
		r.Steps = append(r.Steps, StepResult{Name: "Backup", Summary: "Inbox copied to " + dest})
		log.Info().Str("path", dest).Msg("backup created")
	}

	var out *outputs
	if !opts.DryRun {
		out = &outputs{logsDir: o.cfg.LogsDir(), stamp: stamp, runID: r.RunID, ledger: o.ledger, now: o.now, log: log}
		out.beginRun()
	}

	size := opts.BatchSize
	if size <= 0 {
		size = o.cfg.Ingest.BatchSize
	}
	engine := relocate.New(o.cfg.VaultRoot(), o.cfg.ArchiveDir(), o.now)

	var runErr error
	for i, batchID := 0, 1; i < len(fresh); i, batchID = i+size, batchID+1 {
		if err := ctx.Err(); err != nil {
			sum.Cancelled = true
			runErr = err
			log.Warn().Int("remaining", len(fresh)-i).Msg("run cancelled between batches")
			break
		}
		docs := fresh[i:min(i+size, len(fresh))]
		batch := o.runBatch(engine, r.RunID, batchID, docs, opts.DryRun)
		sum.add(batch)

		if opts.DryRun {
			continue
		}
		if err := o.store.Flush(); err != nil {
			runErr = fmt.Errorf("recording fingerprints: %w", err)
			break
		}
		out.batch(batch, o.cfg.VaultRoot())
		log.Info().
			Int("batch", batchID).
			Int("documents", len(docs)).
			Int("fragments", batch.Fragments).
			Str("dispositions", batch.Dispositions.String()).
			Msg("batch complete")
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Process",
		Summary: fmt.Sprintf("%s%d processed, %d errors, %d fragments (%s)", dryPrefix(opts.DryRun), sum.Processed, sum.Errors, sum.Fragments, sum.Dispositions),
		Err:     runErr,
	})

	if runErr == nil {
		step := o.archiveSeen(engine, plan.Seen, opts.DryRun, out)
		sum.ArchivedUnchanged = step.archived
		sum.ArchiveErrors = step.failed
		r.Steps = append(r.Steps, StepResult{
			Name:    "Archive",
			Summary: fmt.Sprintf("%s%d unchanged documents archived, %d failed", dryPrefix(opts.DryRun), step.archived, step.failed),
		})
	}

	sum.FinishedAt = o.now().Format(time.RFC3339)
	if out != nil {
		out.finishRun(sum)
	}
	return r, runErr
}

func (o *Orchestrator) runBatch(engine *relocate.Engine, runID string, id int, docs []source.Document, dryRun bool) *Batch {
	b := &Batch{
		RunID:        runID,
		ID:           id,
		Timestamp:    o.now().Format(time.RFC3339),
		FileCount:    len(docs),
		Dispositions: triage.Summary{},
	}
	for _, doc := range docs {
		outcome, placed := o.processDocument(engine, doc, dryRun)
		outcome.FragmentsExtracted = len(outcome.Fragments)
		b.Outcomes = append(b.Outcomes, outcome)
		for _, p := range placed {
			b.placed = append(b.placed, placedFragment{source: doc.Key, Placed: p})
		}
		if outcome.Status != StatusProcessed {
			continue
		}
		summary := triage.Summary{}
		for _, f := range outcome.Fragments {
			summary.Add(f.Disposition)
		}
		b.Dispositions.Merge(summary)
		b.Fragments += len(outcome.Fragments)
		if !dryRun {
			o.store.Put(doc.Key, fingerprint.NewRecord(doc.Fingerprint(), len(outcome.Fragments), summaryMap(summary), o.now()))
		}
	}
	return b
}

// processDocument is the unit of atomicity: on error the source is left in
// place and nothing it produced remains in the vault.
func (o *Orchestrator) processDocument(engine *relocate.Engine, doc source.Document, dryRun bool) (Outcome, []relocate.Placed) {
	out := Outcome{Source: doc.Key, Fingerprint: doc.Fingerprint()}
	log := o.log.With().Str("source", doc.Key).Logger()

	text, err := source.Read(doc)
	if err != nil {
		return out.failed(&DocumentError{Key: doc.Key, Stage: StageRead, Err: err}, log), nil
	}

	res := o.chunker.Chunk(o.cleaner.Clean(text))
	out.Complex = res.Complex
	out.Topics = res.Topics

	items := make([]relocate.Item, len(res.Fragments))
	for i, f := range res.Fragments {
		items[i] = relocate.Item{Fragment: f, Decision: o.router.Route(f.Score, f.Coordinate.Purpose)}
	}

	if dryRun {
		for _, it := range items {
			out.Fragments = append(out.Fragments, planned(it))
		}
		out.Status = StatusProcessed
		return out, nil
	}

	placement, err := engine.Place(doc.Source, items)
	if err != nil {
		stage := StageWrite
		var rerr *relocate.Error
		if errors.As(err, &rerr) && rerr.Op == relocate.OpArchive {
			stage = StageArchive
		}
		return out.failed(&DocumentError{Key: doc.Key, Stage: stage, Err: err}, log), nil
	}

	root := o.cfg.VaultRoot()
	for _, p := range placement.Fragments {
		fo := planned(p.Item)
		fo.ID = p.ID
		fo.Path = vaultRel(root, p.Path)
		out.Fragments = append(out.Fragments, fo)
	}
	out.ArchivePath = vaultRel(root, placement.ArchivePath)
	out.Status = StatusProcessed
	log.Debug().Int("fragments", len(out.Fragments)).Bool("complex", res.Complex).Msg("document placed")
	return out, placement.Fragments
}

type archiveStep struct {
	archived, failed int
}

func (o *Orchestrator) archiveSeen(engine *relocate.Engine, docs []source.Document, dryRun bool, out *outputs) archiveStep {
	var step archiveStep
	for _, doc := range docs {
		if dryRun {
			step.archived++
			continue
		}
		dest, err := engine.Archive(doc.Source)
		if err != nil {
			step.failed++
			o.log.Warn().Err(err).Str("source", doc.Key).Msg("archiving unchanged document failed")
			out.logRow(doc.Key, "", "error", err.Error())
			continue
		}
		step.archived++
		out.logRow(doc.Key, vaultRel(o.cfg.VaultRoot(), dest), "archived-unchanged", "")
	}
	return step
}

func planned(it relocate.Item) FragmentOutcome {
	f := it.Fragment
	return FragmentOutcome{
		Sequence:    f.Sequence,
		Score:       f.Score,
		Disposition: it.Decision.Disposition,
		Dest:        it.Decision.Dir,
		Coordinate:  f.Coordinate.Key(),
		Theme:       f.Theme,
		Words:       f.Words(),
		Method:      string(f.Method),
	}
}

func vaultRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func summaryMap(s triage.Summary) map[string]int {
	m := make(map[string]int, len(s))
	for k, v := range s {
		m[string(k)] = v
	}
	return m
}

func dryPrefix(dry bool) string {
	if dry {
		return "[dry-run] "
	}
	return ""
}

// Scores classifies every inbox document, processed or not, without writing
// anything and returns the fragment scores. Unreadable documents are skipped.
func (o *Orchestrator) Scores() ([]float64, error) {
	docs, err := source.Discover(o.cfg.VaultRoot(), o.cfg.InboxDir(), o.cfg.Ingest.Extensions)
	if err != nil {
		return nil, err
	}
	var scores []float64
	for _, doc := range docs {
		text, err := source.Read(doc)
		if err != nil {
			o.log.Warn().Err(err).Str("source", doc.Key).Msg("skipping unreadable document")
			continue
		}
		for _, f := range o.chunker.Chunk(o.cleaner.Clean(text)).Fragments {
			scores = append(scores, f.Score)
		}
	}
	return scores, nil
}
