// Package candidate filters and orders donors for a blood request.
package candidate

import (
	"sort"
	"time"

	"bloodbridge/internal/compat"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/geo"
	"bloodbridge/internal/schedule"
	"bloodbridge/pkg/types"
)

const DefaultPendingCap = 3

// Exclusion reasons, reported by Evaluate for every rejected donor.
const (
	ExcludedIncompatible = "incompatible_blood_type"
	ExcludedIneligible   = "ineligible"
	ExcludedUnavailable  = "unavailable"
	ExcludedOutOfRange   = "out_of_range"
	ExcludedDoubleBooked = "holds_accepted_candidacy"
	ExcludedPendingCap   = "pending_candidacy_cap"
)

// Entry is everything the selection needs to know about one donor.
type Entry struct {
	Donor        *types.DonorProfile
	Schedule     *types.AvailabilitySchedule
	LastDonation *time.Time
	Exposure     types.DonorExposure
}

type Policy struct {
	Eligibility eligibility.Policy
	// donors with this many open pending candidacies are skipped
	PendingCap int
	Compat     compat.Table
}

func (p Policy) pendingCap() int {
	if p.PendingCap <= 0 {
		return DefaultPendingCap
	}
	return p.PendingCap
}

func (p Policy) table() compat.Table {
	if p.Compat == nil {
		return compat.Default
	}
	return p.Compat
}

type Ranked struct {
	DonorID       string  `json:"donorId"`
	DistanceKm    float64 `json:"distanceKm"`
	RecentMatches int     `json:"recentMatches"`
}

type Rejected struct {
	DonorID string `json:"donorId"`
	Reason  string `json:"reason"`
}

type Evaluation struct {
	Selected []*Ranked   `json:"selected"`
	Rejected []*Rejected `json:"rejected,omitempty"`
}

// Evaluate applies the filters in order (compatibility, eligibility,
// availability, geofence, exposure) and orders the survivors.
func Evaluate(req *types.BloodRequest, pool []*Entry, now time.Time, policy Policy) *Evaluation {
	out := &Evaluation{Selected: make([]*Ranked, 0, len(pool))}
	table := policy.table()
	pendingCap := policy.pendingCap()

	for _, e := range pool {
		d := e.Donor
		reject := func(reason string) {
			out.Rejected = append(out.Rejected, &Rejected{DonorID: d.ID, Reason: reason})
		}

		if !table.CanDonate(d.BloodType, req.BloodType) {
			reject(ExcludedIncompatible)
			continue
		}

		if !policy.Eligibility.Check(e.LastDonation, now, d.Location()).Eligible {
			reject(ExcludedIneligible)
			continue
		}

		if !schedule.Effective(d, e.Schedule, now) {
			reject(ExcludedUnavailable)
			continue
		}

		distance := geo.DistanceKm(d.GeoPoint, req.Location)
		if distance > d.AvailabilityRadiusKm {
			reject(ExcludedOutOfRange)
			continue
		}

		if e.Exposure.ActiveAccepted > 0 {
			reject(ExcludedDoubleBooked)
			continue
		}

		if e.Exposure.OpenPending >= pendingCap {
			reject(ExcludedPendingCap)
			continue
		}

		out.Selected = append(out.Selected, &Ranked{
			DonorID:       d.ID,
			DistanceKm:    distance,
			RecentMatches: e.Exposure.RecentMatches,
		})
	}

	Order(out.Selected, req.Urgency)

	return out
}

// Order sorts by distance for critical requests and by fewest recent matches
// otherwise. Ties fall back to distance, then donor id.
func Order(ranked []*Ranked, urgency types.Urgency) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		if urgency != types.UrgencyCritical && a.RecentMatches != b.RecentMatches {
			return a.RecentMatches < b.RecentMatches
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.DonorID < b.DonorID
	})
}

// SelectCandidates returns the ordered donor ids that pass every filter.
func SelectCandidates(req *types.BloodRequest, pool []*Entry, now time.Time, policy Policy) []string {
	eval := Evaluate(req, pool, now, policy)

	ids := make([]string, len(eval.Selected))
	for i, r := range eval.Selected {
		ids[i] = r.DonorID
	}
	return ids
}
