package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/logger"
	"github.com/TobiSchelling/flatdrop/internal/relocate"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

// Document outcome statuses.
const (
	StatusProcessed = "processed"
	StatusError     = "error"
)

// TSVName is the append-only relocation log in the logs directory.
const TSVName = "inload_log.tsv"

// FragmentOutcome describes one fragment cut from a document. ID and Path
// are empty in dry runs.
type FragmentOutcome struct {
	ID          string             `json:"chunk_id,omitempty"`
	Sequence    int                `json:"sequence"`
	Path        string             `json:"path,omitempty"`
	Dest        string             `json:"destination"`
	Score       float64            `json:"quality_score"`
	Disposition triage.Disposition `json:"disposition"`
	Coordinate  string             `json:"coordinate_key"`
	Theme       string             `json:"theme"`
	Words       int                `json:"word_count"`
	Method      string             `json:"method"`
}

// Outcome is the per-document entry of a batch record.
type Outcome struct {
	Source             string            `json:"source_file"`
	Fingerprint        string            `json:"fingerprint"`
	Status             string            `json:"status"`
	FragmentsExtracted int               `json:"fragments_extracted"`
	Complex            bool              `json:"complex"`
	Topics             []string          `json:"topics,omitempty"`
	Fragments          []FragmentOutcome `json:"fragments,omitempty"`
	ArchivePath        string            `json:"archive_path,omitempty"`
	Stage              Stage             `json:"error_stage,omitempty"`
	Error              string            `json:"error,omitempty"`
}

func (o Outcome) failed(err *DocumentError, log logger.Logger) Outcome {
	log.Warn().Err(err.Err).Str("stage", string(err.Stage)).Msg("document skipped")
	o.Status = StatusError
	o.Stage = err.Stage
	o.Error = err.Error()
	o.Fragments = nil
	o.FragmentsExtracted = 0
	return o
}

// Batch is the persisted statistics of one batch.
type Batch struct {
	RunID        string         `json:"run_id"`
	ID           int            `json:"batch_id"`
	Timestamp    string         `json:"timestamp"`
	FileCount    int            `json:"file_count"`
	Fragments    int            `json:"total_fragments_extracted"`
	Dispositions triage.Summary `json:"disposition_distribution"`
	Outcomes     []Outcome      `json:"results"`

	placed []placedFragment
}

type placedFragment struct {
	source string
	relocate.Placed
}

// Processed counts documents placed without error.
func (b *Batch) Processed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == StatusProcessed {
			n++
		}
	}
	return n
}

// Summary is the run summary written to incremental_<stamp>.json.
type Summary struct {
	RunID             string         `json:"run_id"`
	DryRun            bool           `json:"dry_run"`
	Cancelled         bool           `json:"cancelled,omitempty"`
	Discovered        int            `json:"discovered"`
	New               int            `json:"new_documents"`
	ByType            map[string]int `json:"new_by_type"`
	AlreadyProcessed  int            `json:"already_processed"`
	ArchivedUnchanged int            `json:"already_processed_archived"`
	ArchiveErrors     int            `json:"archive_errors"`
	Processed         int            `json:"processed"`
	Errors            int            `json:"skipped_errors"`
	Fragments         int            `json:"total_fragments"`
	Batches           int            `json:"batches"`
	Dispositions      triage.Summary `json:"disposition_breakdown"`
	BackupPath        string         `json:"backup_location,omitempty"`
	Failed            []string       `json:"failed,omitempty"`
	StartedAt         string         `json:"started_at"`
	FinishedAt        string         `json:"finished_at"`
}

func (s *Summary) add(b *Batch) {
	s.Batches++
	s.Fragments += b.Fragments
	s.Dispositions.Merge(b.Dispositions)
	for _, o := range b.Outcomes {
		if o.Status == StatusProcessed {
			s.Processed++
			continue
		}
		s.Errors++
		s.Failed = append(s.Failed, o.Error)
	}
}

// outputs persists run artefacts. Write failures are logged and never abort
// the run; the fingerprint store is the only record that must succeed.
type outputs struct {
	logsDir string
	stamp   string
	runID   string
	ledger  *database.DB
	now     func() time.Time
	log     logger.Logger
}

func (w *outputs) beginRun() {
	if w.ledger == nil {
		return
	}
	if err := w.ledger.BeginRun(w.runID, false); err != nil {
		w.log.Warn().Err(err).Msg("ledger unavailable for this run")
		w.ledger = nil
	}
}

func (w *outputs) batch(b *Batch, vaultRoot string) {
	name := fmt.Sprintf("batch_%s_%03d.json", w.stamp, b.ID)
	if err := w.writeJSON(name, b); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("writing batch record failed")
	}

	now := w.now().Format(time.RFC3339)
	var rows [][]string
	for _, o := range b.Outcomes {
		if o.Status != StatusProcessed {
			rows = append(rows, []string{now, o.Source, "", StatusError, o.Error})
			continue
		}
		for _, f := range o.Fragments {
			notes := fmt.Sprintf("%s score=%.1f fragment=%d/%d", f.Disposition, f.Score, f.Sequence, len(o.Fragments))
			rows = append(rows, []string{now, o.Source, f.Path, "relocated", notes})
		}
	}
	w.appendTSV(rows)

	if w.ledger == nil {
		return
	}
	if err := w.ledger.InsertBatch(database.Batch{
		RunID:        w.runID,
		BatchID:      b.ID,
		FileCount:    b.FileCount,
		Fragments:    b.Fragments,
		Dispositions: summaryMap(b.Dispositions),
	}); err != nil {
		w.log.Warn().Err(err).Int("batch", b.ID).Msg("ledger batch insert failed")
	}
	if err := w.ledger.InsertFragments(ledgerRows(w.runID, vaultRoot, b.placed)); err != nil {
		w.log.Warn().Err(err).Int("batch", b.ID).Msg("ledger fragment insert failed")
	}
}

func (w *outputs) logRow(source, dest, status, notes string) {
	if w == nil {
		return
	}
	w.appendTSV([][]string{{w.now().Format(time.RFC3339), source, dest, status, notes}})
}

func (w *outputs) finishRun(s *Summary) {
	name := "incremental_" + w.stamp + ".json"
	if err := w.writeJSON(name, s); err != nil {
		w.log.Warn().Err(err).Str("file", name).Msg("writing run summary failed")
	}
	if w.ledger == nil {
		return
	}
	data, _ := json.Marshal(s)
	summary := string(data)
	run := database.Run{
		ID:                s.RunID,
		NewDocuments:      s.New,
		Processed:         s.Processed,
		Errors:            s.Errors,
		ArchivedUnchanged: s.ArchivedUnchanged,
		Fragments:         s.Fragments,
		Summary:           &summary,
	}
	if s.BackupPath != "" {
		run.BackupPath = &s.BackupPath
	}
	if err := w.ledger.FinishRun(run); err != nil {
		w.log.Warn().Err(err).Msg("ledger run update failed")
	}
}

func (w *outputs) writeJSON(name string, v any) error {
	if err := os.MkdirAll(w.logsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.logsDir, name), data, 0o644)
}

func (w *outputs) appendTSV(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	if err := appendTSV(filepath.Join(w.logsDir, TSVName), rows); err != nil {
		w.log.Warn().Err(err).Msg("appending relocation log failed")
	}
}

var tsvHeader = []string{"timestamp", "source_path", "dest_path", "status", "notes"}

func appendTSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = '\t'
	if os.IsNotExist(statErr) {
		if err := cw.Write(tsvHeader); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func ledgerRows(runID, vaultRoot string, placed []placedFragment) []database.Fragment {
	rows := make([]database.Fragment, 0, len(placed))
	for _, p := range placed {
		f := p.Fragment
		rows = append(rows, database.Fragment{
			ChunkID:      p.ID,
			RunID:        runID,
			SourceKey:    p.source,
			Sequence:     f.Sequence,
			Total:        f.Total,
			Path:         vaultRel(vaultRoot, p.Path),
			Score:        f.Score,
			Disposition:  string(p.Decision.Disposition),
			Structure:    f.Coordinate.Structure,
			Transmission: f.Coordinate.Transmission,
			Purpose:      f.Coordinate.Purpose,
			Terrain:      f.Coordinate.Terrain,
			Theme:        f.Theme,
			WordCount:    f.Words(),
			Method:       string(f.Method),
			Signals:      map[string]int(f.Signals.Counts),
		})
	}
	return rows
}
