package models

import (
	"time"

	"github.com/google/uuid"
)

// Quota ledger counter names. Counters hold the remaining allotment and
// are only ever decremented (never below zero); the single exception is
// the scheduled daily reset of the connect-scan allotment, which is an
// explicit dated operation, not a silent refill.
const (
	QuotaQRScans       = "qr_scans"
	QuotaProofAttempts = "proof_attempts"
	QuotaConnectScans  = "connect_scans"
)

// Starting allotments for a fresh participant record.
const (
	DefaultQRScanAllotment       = 100
	DefaultProofAttemptAllotment = 250
	DefaultConnectScanAllotment  = 10
)

// QR-scan limits. New users are capped at 5 scans until they earn any
// accomplishment, then the full allotment opens up.
const (
	BootstrapQRScanLimit = 5
	FullQRScanLimit      = DefaultQRScanAllotment
)

// Participant is the per-user record owned by this service. Identity
// (id, email) comes from the gateway's auth context; everything else is
// local state. ShareHash is the payload of the user's personal connect
// QR code — possessing it proves you scanned that person's badge.
type Participant struct {
	ID        string         `dynamodbav:"id" json:"id"`
	Email     string         `dynamodbav:"email" json:"email"`
	ShareHash string         `dynamodbav:"share_hash" json:"-"`
	Quotas    map[string]int `dynamodbav:"quotas" json:"quotas"`
	CreatedAt time.Time      `dynamodbav:"created_at" json:"created_at"`
}

// NewParticipant builds a fresh record with full allotments and an
// unguessable share hash.
func NewParticipant(id, email string) *Participant {
	return &Participant{
		ID:        id,
		Email:     email,
		ShareHash: uuid.NewString(),
		Quotas: map[string]int{
			QuotaQRScans:       DefaultQRScanAllotment,
			QuotaProofAttempts: DefaultProofAttemptAllotment,
			QuotaConnectScans:  DefaultConnectScanAllotment,
		},
		CreatedAt: time.Now(),
	}
}

// QuotaRemaining reads a counter, treating a missing key as exhausted.
func (p *Participant) QuotaRemaining(counter string) int {
	if p.Quotas == nil {
		return 0
	}
	return p.Quotas[counter]
}
