// Package jobs tracks download jobs: a lock-free registry of observable
// states and a driver that runs one fetcher process per job.
package jobs

import "github.com/lvcoi/ytmp4/internal/progress"

// Status is the lifecycle phase of a job.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusMerging     Status = "merging"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// IsActive reports whether the job is still running.
func (s Status) IsActive() bool {
	return s == StatusStarting || s == StatusDownloading || s == StatusMerging
}

// FailureMessage is reported when the fetcher exits unsuccessfully.
const FailureMessage = "Download failed"

// State is the observable status of one job. Values are immutable once
// published to the registry; transitions return a new State.
type State struct {
	Progress    float64 `json:"progress"`
	Status      Status  `json:"status"`
	Filename    string  `json:"filename"`
	DownloadURL string  `json:"downloadUrl,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func initialState() State {
	return State{Status: StatusStarting}
}

// Apply folds one parsed signal into the state.
//
// Percentages only move forward while starting or downloading, so a garbled
// line cannot drag the displayed value back. The merge checkpoint is the one
// exception and always sets MergeCheckpoint. Percentages seen while merging
// are ignored.
func (s State) Apply(sig progress.Signal) State {
	if s.Status.IsTerminal() {
		return s
	}
	switch sig.Kind {
	case progress.KindPercent:
		if s.Status != StatusStarting && s.Status != StatusDownloading {
			return s
		}
		s.Status = StatusDownloading
		if sig.Percent > s.Progress {
			s.Progress = sig.Percent
		}
	case progress.KindMerging:
		s.Status = StatusMerging
		s.Progress = progress.MergeCheckpoint
	case progress.KindDestination:
		if sig.Filename != "" {
			s.Filename = sig.Filename
		}
	}
	return s
}

// Complete returns the terminal success state for the artifact name.
func (s State) Complete(filename, downloadURL string) State {
	return State{
		Progress:    100,
		Status:      StatusComplete,
		Filename:    filename,
		DownloadURL: downloadURL,
	}
}

// Fail returns the terminal error state. Progress resets to zero and no
// artifact is surfaced; the last known filename is kept for reference.
func (s State) Fail(cause string) State {
	return State{
		Progress: 0,
		Status:   StatusError,
		Filename: s.Filename,
		Error:    cause,
	}
}
