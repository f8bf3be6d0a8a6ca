package database

// Run is one orchestrator invocation.
type Run struct {
	ID                string
	StartedAt         string
	FinishedAt        *string
	DryRun            bool
	NewDocuments      int
	Processed         int
	Errors            int
	ArchivedUnchanged int
	Fragments         int
	BackupPath        *string
	// Summary is the run summary as JSON.
	Summary *string
}

// Batch is the statistics row for one batch of a run.
type Batch struct {
	RunID        string
	BatchID      int
	FileCount    int
	Fragments    int
	Dispositions map[string]int
}

// Fragment is a placed fragment file.
type Fragment struct {
	ChunkID      string
	RunID        string
	SourceKey    string
	Sequence     int
	Total        int
	Path         string
	Score        float64
	Disposition  string
	Structure    string
	Transmission string
	Purpose      string
	Terrain      string
	Theme        string
	WordCount    int
	Method       string
	Signals      map[string]int
	CreatedAt    *string
}

// CoordinateKey returns structure:transmission:purpose:terrain.
func (f Fragment) CoordinateKey() string {
	return f.Structure + ":" + f.Transmission + ":" + f.Purpose + ":" + f.Terrain
}

// Fingerprint is the stored state of a processed source document.
type Fingerprint struct {
	DocumentKey        string
	Fingerprint        string
	LastProcessed      string
	FragmentsExtracted int
	DispositionSummary map[string]int
}

// CoordinateCount aggregates fragments sharing one coordinate.
type CoordinateCount struct {
	Structure    string
	Transmission string
	Purpose      string
	Terrain      string
	Count        int
	AvgScore     float64
}

// Stats holds aggregate ledger statistics.
type Stats struct {
	Runs          int
	LastRunAt     *string
	Fragments     int
	Sources       int
	Fingerprints  int
	ByDisposition map[string]int
}
