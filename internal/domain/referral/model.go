package referral

import (
	"time"

	"github.com/google/uuid"
)

// Status is the referral lifecycle state. The funnel advances
// new -> in_progress -> contacted -> scheduled -> booked/booked_elsewhere ->
// visited -> paid; duplicate, no_answer and cancelled are side exits
// reachable from any non-terminal state.
type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusContacted       Status = "contacted"
	StatusScheduled       Status = "scheduled"
	StatusBooked          Status = "booked"
	StatusBookedElsewhere Status = "booked_elsewhere"
	StatusVisited         Status = "visited"
	StatusPaid            Status = "paid"
	StatusDuplicate       Status = "duplicate"
	StatusNoAnswer        Status = "no_answer"
	StatusCancelled       Status = "cancelled"
)

// funnelRank orders the forward funnel. Side exits are not ranked.
var funnelRank = map[Status]int{
	StatusNew:             0,
	StatusInProgress:      1,
	StatusContacted:       2,
	StatusScheduled:       3,
	StatusBooked:          4,
	StatusBookedElsewhere: 4,
	StatusVisited:         5,
	StatusPaid:            6,
}

var sideExits = map[Status]bool{
	StatusDuplicate: true,
	StatusNoAnswer:  true,
	StatusCancelled: true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if sideExits[s] {
		return true
	}
	_, ok := funnelRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPaid || sideExits[s]
}

// Open reports whether a referral in this status is still claimable by a
// clinic report (the matcher's candidate pool).
func (s Status) Open() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusContacted, StatusScheduled, StatusBooked:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal transition. The funnel
// only moves forward (skipping stages is allowed), side exits leave any
// non-terminal state, and nothing leaves a terminal state. booked and
// booked_elsewhere are siblings, not reachable from each other.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() || from == to {
		return false
	}
	if sideExits[to] {
		return true
	}
	return funnelRank[to] > funnelRank[from]
}

// Referral represents one patient directed by one agent to a clinic.
// Monetary fields are minor currency units and are nil until settlement.
type Referral struct {
	ID               int64      `db:"id" json:"id"`
	AgentID          uuid.UUID  `db:"agent_id" json:"agent_id"`
	PatientName      string     `db:"patient_name" json:"patient_name"`
	PatientBirthdate *time.Time `db:"patient_birthdate" json:"patient_birthdate,omitempty"`
	PatientContact   *string    `db:"patient_contact" json:"patient_contact,omitempty"`
	ClinicName       *string    `db:"clinic_name" json:"clinic_name,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	Status           Status     `db:"status" json:"status"`
	TreatmentAmount  *int64     `db:"treatment_amount" json:"treatment_amount,omitempty"`
	CommissionAmount *int64     `db:"commission_amount" json:"commission_amount,omitempty"`
	SettledReportID  *uuid.UUID `db:"settled_report_id" json:"settled_report_id,omitempty"`
	SettledAt        *time.Time `db:"settled_at" json:"settled_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// HistoryEntry is one recorded status transition.
type HistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	ReferralID int64     `db:"referral_id" json:"referral_id"`
	FromStatus Status    `db:"from_status" json:"from_status"`
	ToStatus   Status    `db:"to_status" json:"to_status"`
	Actor      string    `db:"actor" json:"actor"`
	At         time.Time `db:"at" json:"at"`
}
