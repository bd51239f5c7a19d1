package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/sowhours/internal/apperr"
)

// UpdateRole edits one field of a row. A failed edit leaves the row as it was.
func (l *Ledger) UpdateRole(id string, field Field, value string, env Env) (Row, error) {
	i := l.index(id)
	if i < 0 {
		return Row{}, ErrRowNotFound
	}
	row := l.Rows[i]

	switch field {
	case FieldRole:
		name := strings.TrimSpace(value)
		if env.Removal.LocksProjectManager() && (IsProjectManager(row.Role) || IsProjectManager(name)) {
			return Row{}, ErrRowLocked
		}
		row.Role = name
		if isManaged(name) {
			l.undismiss(name)
		}
		cfg, ok := env.Book.Role(name)
		switch {
		case !ok:
			row.RoleConfigID = ""
		case cfg.ID != row.RoleConfigID:
			row.RoleConfigID = cfg.ID
			row.DefaultRate = cfg.DefaultRatePerHour
			row.RatePerHour = cfg.DefaultRatePerHour
		}

	case FieldRatePerHour, FieldTotalHours:
		if env.Removal.LocksProjectManager() && IsProjectManager(row.Role) {
			return Row{}, ErrRowLocked
		}
		n, err := parseAmount(string(field), value)
		if err != nil {
			return Row{}, err
		}
		if field == FieldRatePerHour {
			row.RatePerHour = n
			row.Sync = Diverged
			break
		}
		if env.Removal.Approved() && IsOnboardingSpecialist(row.Role) && l.Basis != nil {
			// The specialist carries the full base once PM hours are removed.
			row.TotalHours = l.Basis.BaseProjectHours
			row.Sync = Synced
			break
		}
		row.TotalHours = n
		row.Sync = Diverged

	default:
		return Row{}, apperr.Invalid("field", "must be one of role, ratePerHour, totalHours")
	}

	row.recost()
	l.Rows[i] = row
	return row, nil
}

// AddRole appends an unnamed row priced at the fallback rate.
func (l *Ledger) AddRole(env Env) Row {
	row := newRow("", env.Book.Policy.FallbackRatePerHour, "")
	l.Rows = append(l.Rows, row)
	return row
}

// RemoveRole deletes a row. A Project Manager row on a removal-eligible
// segment is kept; its hours can only go through a removal request.
func (l *Ledger) RemoveRole(id string, env Env) (RemoveOutcome, error) {
	i := l.index(id)
	if i < 0 {
		return "", ErrRowNotFound
	}
	row := l.Rows[i]
	if IsProjectManager(row.Role) && env.Book.Policy.RemovalEligible(env.Segment) {
		return RemovalRequestRequired, nil
	}
	if IsProjectManager(row.Role) && env.Removal.LocksProjectManager() {
		return "", ErrRowLocked
	}

	l.Rows = append(l.Rows[:i], l.Rows[i+1:]...)
	if isManaged(row.Role) && l.indexOfRole(row.Role) < 0 && !l.dismissed(row.Role) {
		l.Dismissed = append(l.Dismissed, canonicalRole(row.Role))
	}
	return Removed, nil
}

// Resync hands a managed row back to the hours engine and applies the last
// basis to it.
func (l *Ledger) Resync(id string, env Env) (Row, error) {
	i := l.index(id)
	if i < 0 {
		return Row{}, ErrRowNotFound
	}
	row := l.Rows[i]
	if !isManaged(row.Role) {
		return Row{}, ErrNotManaged
	}
	if IsProjectManager(row.Role) && env.Removal.LocksProjectManager() {
		return Row{}, ErrRowLocked
	}

	row.Sync = Synced
	if cfg, ok := env.Book.Role(row.Role); ok {
		row.RoleConfigID = cfg.ID
		row.DefaultRate = cfg.DefaultRatePerHour
		row.RatePerHour = cfg.DefaultRatePerHour
	}
	if l.Basis != nil {
		dist := l.Basis.distribution()
		if IsProjectManager(row.Role) {
			row.TotalHours = dist.ProjectManagerHours
		} else {
			row.TotalHours = dist.OnboardingSpecialistHours
		}
	}
	row.recost()
	l.Rows[i] = row
	return row, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	n, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, apperr.Invalid(field, "must be a number")
	}
	if n.IsNegative() {
		return decimal.Decimal{}, apperr.Invalid(field, "must not be negative")
	}
	return n, nil
}

func canonicalRole(role string) string {
	if IsProjectManager(role) {
		return RoleProjectManager
	}
	return RoleOnboardingSpecialist
}
