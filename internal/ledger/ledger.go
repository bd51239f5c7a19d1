package ledger

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/pmremoval"
	"github.com/Simplici0/sowhours/internal/pricing"
)

// The two roles the engine distributes hours to.
const (
	RoleOnboardingSpecialist = "Onboarding Specialist"
	RoleProjectManager       = "Project Manager"
)

var (
	ErrRowNotFound = apperr.NotFound("pricing role row")
	ErrRowLocked   = apperr.State("project manager row is locked by a pm hours removal request")
	ErrNotManaged  = apperr.State("only onboarding specialist and project manager rows follow the hours engine")
)

// SyncState says who owns a row's hours.
type SyncState string

const (
	// Synced rows follow the hours engine.
	Synced SyncState = "synced"
	// Diverged rows were edited by hand and are skipped by Sync until Resync.
	Diverged SyncState = "diverged"
)

// Field is an editable column of a row.
type Field string

const (
	FieldRole        Field = "role"
	FieldRatePerHour Field = "ratePerHour"
	FieldTotalHours  Field = "totalHours"
)

// RemoveOutcome tells the caller what RemoveRole did.
type RemoveOutcome string

const (
	Removed RemoveOutcome = "removed"
	// RemovalRequestRequired means the row stays and the caller must open a
	// PM-hours-removal request instead.
	RemovalRequestRequired RemoveOutcome = "removal_request_required"
)

// Row is one role of the SOW's pricing table.
type Row struct {
	ID           string          `json:"id"`
	Role         string          `json:"role"`
	RoleConfigID string          `json:"roleConfigId,omitempty"`
	RatePerHour  decimal.Decimal `json:"ratePerHour"`
	DefaultRate  decimal.Decimal `json:"defaultRate"`
	TotalHours   decimal.Decimal `json:"totalHours"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	Sync         SyncState       `json:"sync"`
}

func (r *Row) recost() {
	r.TotalCost = r.RatePerHour.Mul(r.TotalHours)
}

// Basis is the set of engine outputs a sync pass reacts to.
type Basis struct {
	BaseProjectHours        decimal.Decimal `json:"baseProjectHours"`
	PMHours                 decimal.Decimal `json:"pmHours"`
	ShouldAddProjectManager bool            `json:"shouldAddProjectManager"`
	RemovalApproved         bool            `json:"removalApproved"`
}

// BasisFrom extracts a Basis from calculator output.
func BasisFrom(r hours.Result, removalApproved bool) Basis {
	return Basis{
		BaseProjectHours:        r.BaseProjectHours,
		PMHours:                 r.PMHours,
		ShouldAddProjectManager: r.ShouldAddProjectManager,
		RemovalApproved:         removalApproved,
	}
}

func (b Basis) Equal(o Basis) bool {
	return b.BaseProjectHours.Equal(o.BaseProjectHours) &&
		b.PMHours.Equal(o.PMHours) &&
		b.ShouldAddProjectManager == o.ShouldAddProjectManager &&
		b.RemovalApproved == o.RemovalApproved
}

func (b Basis) distribution() hours.Distribution {
	return hours.Distribute(b.BaseProjectHours, b.PMHours, b.ShouldAddProjectManager, b.RemovalApproved)
}

// Env is the outside context a ledger mutation needs.
type Env struct {
	Removal pmremoval.State
	Segment string
	Book    catalog.RuleBook
}

// Ledger is the per-SOW pricing role table.
type Ledger struct {
	SOWID string `json:"sowId"`
	Rows  []Row  `json:"rows"`
	// Basis is the last basis applied by Sync; nil until the first pass.
	Basis *Basis `json:"basis,omitempty"`
	// Dismissed lists managed roles the user deleted; Sync will not recreate them.
	Dismissed []string `json:"dismissed,omitempty"`
}

// New returns an empty ledger for a SOW.
func New(sowID string) *Ledger {
	return &Ledger{SOWID: sowID, Rows: []Row{}}
}

// Row looks a row up by id.
func (l *Ledger) Row(id string) (Row, bool) {
	if i := l.index(id); i >= 0 {
		return l.Rows[i], true
	}
	return Row{}, false
}

// Lines converts rows for the cost aggregator.
func (l *Ledger) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(l.Rows))
	for _, r := range l.Rows {
		lines = append(lines, pricing.Line{Role: r.Role, TotalCost: r.TotalCost})
	}
	return lines
}

// IsProjectManager matches the Project Manager role name.
func IsProjectManager(role string) bool {
	return sameRole(role, RoleProjectManager)
}

// IsOnboardingSpecialist matches the Onboarding Specialist role name.
func IsOnboardingSpecialist(role string) bool {
	return sameRole(role, RoleOnboardingSpecialist)
}

func isManaged(role string) bool {
	return IsProjectManager(role) || IsOnboardingSpecialist(role)
}

func sameRole(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}

func (l *Ledger) index(id string) int {
	for i := range l.Rows {
		if l.Rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) indexOfRole(role string) int {
	for i := range l.Rows {
		if sameRole(l.Rows[i].Role, role) {
			return i
		}
	}
	return -1
}

func (l *Ledger) dismissed(role string) bool {
	for _, r := range l.Dismissed {
		if sameRole(r, role) {
			return true
		}
	}
	return false
}

func (l *Ledger) undismiss(role string) {
	kept := l.Dismissed[:0]
	for _, r := range l.Dismissed {
		if !sameRole(r, role) {
			kept = append(kept, r)
		}
	}
	l.Dismissed = kept
}

func newRow(role string, rate decimal.Decimal, configID string) Row {
	return Row{
		ID:           uuid.NewString(),
		Role:         role,
		RoleConfigID: configID,
		RatePerHour:  rate,
		DefaultRate:  rate,
		TotalHours:   decimal.Zero,
		TotalCost:    decimal.Zero,
		Sync:         Synced,
	}
}

func seededRow(role string, book catalog.RuleBook) Row {
	if cfg, ok := book.Role(role); ok {
		return newRow(role, cfg.DefaultRatePerHour, cfg.ID)
	}
	return newRow(role, book.Policy.FallbackRatePerHour, "")
}
