package types

import "time"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type DonationRecord struct {
	ID                 string             `db:"id" json:"id"`
	DonorID            string             `db:"donor_id" json:"donorId"`
	DonationDate       time.Time          `db:"donation_date" json:"donationDate"`
	UnitsProvided      int                `db:"units_provided" json:"unitsProvided"`
	VerificationStatus VerificationStatus `db:"verification_status" json:"verificationStatus"`
	// Verified records are locked; only an audited unlock permits changes.
	Locked          bool       `db:"locked" json:"locked"`
	VerifiedBy      *string    `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

type AuditAction string

const (
	AuditActionLock   AuditAction = "lock"
	AuditActionUnlock AuditAction = "unlock"
	AuditActionAmend  AuditAction = "amend"
)

// AuditEntry records an administrative override on a donation record.
type AuditEntry struct {
	ID         string      `db:"id" json:"id"`
	RecordID   string      `db:"record_id" json:"recordId"`
	DonorID    string      `db:"donor_id" json:"donorId"`
	Action     AuditAction `db:"action" json:"action"`
	Actor      string      `db:"actor" json:"actor"`
	Reason     string      `db:"reason" json:"reason"`
	OccurredAt time.Time   `db:"occurred_at" json:"occurredAt"`
}

// DonationMutator changes r in place while the record is locked. A non-nil
// entry is persisted with the change. Returning an error writes nothing.
type DonationMutator func(r *DonationRecord) (*AuditEntry, error)
