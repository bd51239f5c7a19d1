package pmremoval

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisplayPMHourlyRate prices a removal request for display. It is a fixed
// figure, not the ledger's live Project Manager rate.
var DisplayPMHourlyRate = decimal.NewFromInt(250)

// Status is the lifecycle position of a removal request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Request asks an approver to remove Project Manager hours from a SOW.
//
//	pending ──approve──▶ approved
//	   └─────reject────▶ rejected
type Request struct {
	ID              string          `json:"id"`
	SOWID           string          `json:"sowId"`
	CurrentPMHours  decimal.Decimal `json:"currentPmHours"`
	HoursToRemove   decimal.Decimal `json:"hoursToRemove"`
	Reason          string          `json:"reason"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	RequesterID     string          `json:"requesterId"`
	DecidedBy       string          `json:"decidedBy,omitempty"`
	DecidedAt       *time.Time      `json:"decidedAt,omitempty"`
	DecisionNote    string          `json:"decisionNote,omitempty"`
	FinancialImpact decimal.Decimal `json:"financialImpact"`
}

// Comment is one entry of a request's discussion thread. Comments are never
// edited or deleted.
type Comment struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId"`
	AuthorID   string    `json:"authorId"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
	IsInternal bool      `json:"isInternal"`
}

// FinancialImpact prices hours at DisplayPMHourlyRate. Negative hours count as zero.
func FinancialImpact(hoursToRemove decimal.Decimal) decimal.Decimal {
	if hoursToRemove.IsNegative() {
		return decimal.Zero
	}
	return hoursToRemove.Mul(DisplayPMHourlyRate)
}

// State summarises all requests of a SOW for the hours engine.
type State string

const (
	StateNone     State = "none"
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Approved reports whether PM hours have been removed.
func (s State) Approved() bool { return s == StateApproved }

// LocksProjectManager reports whether the Project Manager row must not be edited.
func (s State) LocksProjectManager() bool {
	return s == StatePending || s == StateApproved
}

// StateOf folds a SOW's requests into one State. An approval is permanent, so
// it wins over any later pending or rejected request.
func StateOf(reqs []Request) State {
	state := StateNone
	for _, r := range reqs {
		switch r.Status {
		case StatusApproved:
			return StateApproved
		case StatusPending:
			state = StatePending
		case StatusRejected:
			if state == StateNone {
				state = StateRejected
			}
		}
	}
	return state
}
