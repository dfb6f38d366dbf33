package domain

import "time"

// DatasetFile is one file extracted from a provider dataset archive.
type DatasetFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ArtifactEvent announces a newly persisted artifact.
type ArtifactEvent struct {
	RunID     string    `json:"run_id"`
	StationID string    `json:"station_id"`
	Period    Period    `json:"period"`
	Path      string    `json:"path"`
	Bytes     int       `json:"bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PassEvent summarizes one fetch pass for a period.
type PassEvent struct {
	RunID      string    `json:"run_id"`
	Period     Period    `json:"period"`
	Attempt    int       `json:"attempt"`
	Outcome    string    `json:"outcome"`
	Made       int       `json:"made"`
	Skipped    int       `json:"skipped"`
	Fetched    int       `json:"fetched"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// DatasetReport summarizes one dataset download.
type DatasetReport struct {
	Files        []DatasetFile
	Missing      []string // requested members absent from the archive
	Failed       []string // members present but not extracted
	ArchiveBytes int64
}

// StepResult records one executed bulk transfer step.
type StepResult struct {
	Step     string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}
