package domain

// RunStatus tracks each pipeline stage for a single polishing run.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusResolving   RunStatus = "resolving"
	RunStatusCompressing RunStatus = "compressing"
	RunStatusAligning    RunStatus = "aligning"
	RunStatusInferring   RunStatus = "inferring"
	RunStatusStitching   RunStatus = "stitching"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// GapFillPolicy selects how the stitcher fills regions without consensus calls.
type GapFillPolicy string

const (
	// GapFillDraft copies uncovered regions from the draft assembly.
	GapFillDraft GapFillPolicy = "draft"
	// GapFillChar fills uncovered regions with a literal character.
	GapFillChar GapFillPolicy = "char"
	// GapFillNone leaves uncovered regions out of the output.
	GapFillNone GapFillPolicy = "none"
)

// RunConfig is the immutable configuration of one polishing run,
// built once from CLI arguments.
type RunConfig struct {
	BasecallsPath string
	DraftPath     string
	OutputDir     string
	Model         string
	Threads       int
	BatchSize     int
	Force         bool
	ForceIndex    bool
	GapFill       GapFillPolicy
	FillChar      string
}

// Settings contains persisted user defaults applied when a run
// does not override them.
type Settings struct {
	Model     string `json:"model"`
	ModelDir  string `json:"modelDir"`
	OutputDir string `json:"outputDir"`
	Threads   int    `json:"threads"`
	BatchSize int    `json:"batchSize"`
}

// Run stores the current run identity and lifecycle status.
type Run struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
}
