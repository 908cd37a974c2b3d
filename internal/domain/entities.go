package domain

import (
	"fmt"
	"time"
)

// Participant is one player named on a reservation
type Participant struct {
	LastName  string `json:"lastName" yaml:"lastName"`
	FirstName string `json:"firstName" yaml:"firstName"`
}

// Location is a candidate facility, optionally restricted to some court numbers
type Location struct {
	Name   string `json:"name"`
	Courts []int  `json:"courts,omitempty"`
}

// AllowsCourt reports whether the court number passes the location's allow-list.
// An empty allow-list accepts every court.
func (l Location) AllowsCourt(n int) bool {
	if len(l.Courts) == 0 {
		return true
	}
	for _, c := range l.Courts {
		if c == n {
			return true
		}
	}
	return false
}

// Slot is one bookable (date, hour, court) unit found on the results view
type Slot struct {
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Hour        string    `json:"hour"`
	CourtID     string    `json:"court_id"`
	CourtNumber int       `json:"court_number,omitempty"`
	PriceType   string    `json:"price_type,omitempty"`
	CourtType   string    `json:"court_type,omitempty"`
}

// Key identifies the slot uniquely within a run
func (s Slot) Key() string {
	return fmt.Sprintf("%s_%s_%s_%s", s.Location, s.Date.Format("2006-01-02"), s.Hour, s.CourtID)
}

// OutcomeStatus is the per-location scan result
type OutcomeStatus int

const (
	NotFound OutcomeStatus = iota
	Booked
)

func (s OutcomeStatus) String() string {
	if s == Booked {
		return "booked"
	}
	return "not_found"
}

// SearchOutcome is returned by the slot scanner for one location
type SearchOutcome struct {
	Status OutcomeStatus
	Slot   Slot
}

// Found reports whether a qualifying slot was selected
func (o SearchOutcome) Found() bool {
	return o.Status == Booked
}

// Confirmation holds the details extracted from the portal after booking
type Confirmation struct {
	Location   string    `json:"location"`
	Hour       string    `json:"hour"`
	TargetDate time.Time `json:"target_date"`
	Address    string    `json:"address"`
	DateText   string    `json:"date_text"`
	CourtText  string    `json:"court_text"`
	DryRun     bool      `json:"dry_run"`
}

// BookingResult is the final state of a retried run
type BookingResult struct {
	RunID        string
	TargetDate   time.Time
	Attempts     int
	Confirmation *Confirmation
	Reason       string
	Err          error
}

// Success reports whether the run ended with a confirmation
func (r BookingResult) Success() bool {
	return r.Confirmation != nil && r.Err == nil
}

// RunRecord is a persisted run summary
type RunRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	TargetDate time.Time `json:"target_date"`
	DryRun     bool      `json:"dry_run"`
	Status     string    `json:"status"` // running, booked, dry_run, failed
	Reason     string    `json:"reason,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// BookingRecord is a persisted confirmation
type BookingRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Location   string    `json:"location"`
	Hour       string    `json:"hour"`
	TargetDate time.Time `json:"target_date"`
	Address    string    `json:"address"`
	DateText   string    `json:"date_text"`
	CourtText  string    `json:"court_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityLog for debugging and audit
type ActivityLog struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Run status constants
const (
	RunStatusRunning = "running"
	RunStatusBooked  = "booked"
	RunStatusDryRun  = "dry_run"
	RunStatusFailed  = "failed"
)

// ActivityAction constants
const (
	ActionLogin        = "login"
	ActionSearch       = "search"
	ActionSlotFound    = "slot_found"
	ActionCaptcha      = "captcha"
	ActionSubmitted    = "submitted"
	ActionDryRunCancel = "dry_run_cancel"
	ActionRetry        = "retry"
	ActionError        = "error"
)
