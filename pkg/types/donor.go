package types

import "time"

type BloodType string

const (
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
)

var BloodTypes = []BloodType{
	BloodTypeONeg, BloodTypeOPos,
	BloodTypeANeg, BloodTypeAPos,
	BloodTypeBNeg, BloodTypeBPos,
	BloodTypeABNeg, BloodTypeABPos,
}

func (b BloodType) Valid() bool {
	for _, t := range BloodTypes {
		if t == b {
			return true
		}
	}
	return false
}

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `db:"lat" json:"lat"`
	Lng float64 `db:"lng" json:"lng"`
}

type DonorProfile struct {
	ID                   string     `db:"id" json:"id"`
	DisplayName          *string    `db:"display_name" json:"displayName,omitempty"`
	BloodType            BloodType  `db:"blood_type" json:"bloodType"`
	IsAvailable          bool       `db:"is_available" json:"isAvailable"`
	AvailabilityRadiusKm float64    `db:"availability_radius_km" json:"availabilityRadiusKm"`
	Timezone             string     `db:"timezone" json:"timezone"`
	LastDonationDate     *time.Time `db:"last_donation_date" json:"lastDonationDate,omitempty"`
	TotalDonations       int        `db:"total_donations" json:"totalDonations"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`

	GeoPoint `json:"location"`
}

// Location resolves the donor's IANA timezone, falling back to UTC.
func (d *DonorProfile) Location() *time.Location {
	if d.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DonorExposure summarises a donor's candidacies on other requests.
type DonorExposure struct {
	DonorID string
	// accepted candidacies still inside the acceptance hold window
	ActiveAccepted int
	// pending candidacies on open matches
	OpenPending int
	// candidacies created inside the fairness window
	RecentMatches int
}
