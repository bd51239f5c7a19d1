package ledger

import "github.com/shopspring/decimal"

// SyncResult reports what a Sync pass did.
type SyncResult struct {
	Changed bool
	Seeded  []string
	// Unpriced lists seeded roles missing from the pricing catalog; they were
	// given the fallback rate.
	Unpriced []string
}

// Sync applies a new basis to the managed rows. It does nothing when the
// basis equals the last applied one, so hand edits survive unrelated saves.
//
// Diverged rows, custom rows and dismissed roles are never touched, with one
// exception: once removal is approved the Onboarding Specialist row carries
// the full base whatever its sync state. Its rate is left alone. The Project
// Manager row keeps its historical hours.
func (l *Ledger) Sync(basis Basis, env Env) SyncResult {
	if l.Basis != nil && l.Basis.Equal(basis) {
		return SyncResult{}
	}
	res := SyncResult{Changed: true}
	dist := basis.distribution()

	l.apply(RoleOnboardingSpecialist, dist.OnboardingSpecialistHours, true, basis.RemovalApproved, env, &res)
	if !basis.RemovalApproved {
		l.apply(RoleProjectManager, dist.ProjectManagerHours, basis.ShouldAddProjectManager, false, env, &res)
	}

	b := basis
	l.Basis = &b
	return res
}

func (l *Ledger) apply(role string, hrs decimal.Decimal, seed, force bool, env Env, res *SyncResult) {
	i := l.indexOfRole(role)
	if i < 0 {
		if !seed || l.dismissed(role) {
			return
		}
		row := seededRow(role, env.Book)
		if row.RoleConfigID == "" {
			res.Unpriced = append(res.Unpriced, role)
		}
		row.TotalHours = hrs
		row.recost()
		l.Rows = append(l.Rows, row)
		res.Seeded = append(res.Seeded, role)
		return
	}
	if l.Rows[i].Sync != Synced && !force {
		return
	}
	if force {
		l.Rows[i].Sync = Synced
	}
	l.Rows[i].TotalHours = hrs
	l.Rows[i].recost()
}
