package hours

import "github.com/shopspring/decimal"

// Distribution is the authoritative hour split between the two managed roles.
type Distribution struct {
	OnboardingSpecialistHours decimal.Decimal `json:"onboardingSpecialistHours"`
	ProjectManagerHours       decimal.Decimal `json:"projectManagerHours"`
	TotalProjectHours         decimal.Decimal `json:"totalProjectHours"`
}

// Distribute splits base hours between Onboarding Specialist and Project
// Manager. An approved PM-hours removal zeroes the PM share and hands the
// full base back to the Onboarding Specialist.
//
// OnboardingSpecialistHours + ProjectManagerHours == base in every branch.
func Distribute(base, pmHours decimal.Decimal, shouldAddPM, removalApproved bool) Distribution {
	pm := decimal.Zero
	if !removalApproved && shouldAddPM {
		pm = clamp(pmHours, decimal.Max(base, decimal.Zero))
	}

	specialist := base.Sub(pm)
	return Distribution{
		OnboardingSpecialistHours: specialist,
		ProjectManagerHours:       pm,
		TotalProjectHours:         specialist.Add(pm),
	}
}

// Estimate bundles the calculator and resolver outputs for one SOW.
type Estimate struct {
	Hours           Result       `json:"hours"`
	Distribution    Distribution `json:"distribution"`
	RemovalApproved bool         `json:"pmHoursRemovalApproved"`
}

// NewEstimate runs Distribute over a calculator result.
func NewEstimate(r Result, removalApproved bool) Estimate {
	return Estimate{
		Hours:           r,
		Distribution:    Distribute(r.BaseProjectHours, r.PMHours, r.ShouldAddProjectManager, removalApproved),
		RemovalApproved: removalApproved,
	}
}

func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(upper) {
		return upper
	}
	return v
}
