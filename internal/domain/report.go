package domain

import (
	"encoding/json"
	"time"
)

// Stage names the pipeline step an ItemError came from.
type Stage string

const (
	StageSelect   Stage = "select"
	StageFetch    Stage = "fetch"
	StageDispatch Stage = "dispatch"
	StageRecord   Stage = "record"
)

// ItemError is a failure scoped to one symbol, alert, or recipient. Key holds
// the symbol or alert ID the failure belongs to.
type ItemError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e ItemError) Error() string {
	return string(e.Stage) + " " + e.Key + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

// MarshalJSON renders the wrapped error as a string.
func (e ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Stage Stage  `json:"stage"`
		Key   string `json:"key"`
		Error string `json:"error"`
	}{e.Stage, e.Key, e.Err.Error()})
}

// CycleReport aggregates the outcome of one evaluation cycle.
type CycleReport struct {
	CycleID              string        `json:"cycle_id"`
	StartedAt            time.Time     `json:"started_at"`
	FinishedAt           time.Time     `json:"finished_at"`
	Duration             time.Duration `json:"duration_ns"`
	AlertsExamined       int           `json:"alerts_examined"`
	InvalidAlerts        int           `json:"invalid_alerts"`
	SymbolsRequested     int           `json:"symbols_requested"`
	SymbolsFetched       int           `json:"symbols_fetched"`
	FetchFailures        int           `json:"fetch_failures"`
	TriggersFound        int           `json:"triggers_found"`
	NotificationsSent    int           `json:"notifications_sent"`
	NotificationFailures int           `json:"notification_failures"`
	RecordsWritten       int           `json:"records_written"`
	RecordFailures       int           `json:"record_failures"`
	// Aborted is set when selection failed and nothing else ran.
	Aborted bool        `json:"aborted"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// AddError appends a per-item failure.
func (r *CycleReport) AddError(stage Stage, key string, err error) {
	r.Errors = append(r.Errors, ItemError{Stage: stage, Key: key, Err: err})
}

// HasFailures reports whether anything in the cycle went wrong.
func (r CycleReport) HasFailures() bool {
	return r.Aborted || len(r.Errors) > 0
}
