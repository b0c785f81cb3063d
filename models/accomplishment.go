package models

import (
	"fmt"
	"time"

	"github.com/gosimple/slug"
)

// Accomplishment is an immutable award record, created exactly once per
// successful claim and never mutated or deleted afterwards.
//
// Stored in the accomplishments table with pk = user id and
// sk = "<dedup key>#<seq>", so a conditional create on the key doubles
// as per-user duplicate prevention. Metadata always carries enough to
// re-derive the dedup key (code id, peer hash, or CTF handle + name).
type Accomplishment struct {
	ID          string            `dynamodbav:"id" json:"id"`
	UserID      string            `dynamodbav:"user_id" json:"user_id"`
	UserEmail   string            `dynamodbav:"user_email" json:"user_email"`
	Type        AchievementType   `dynamodbav:"type" json:"type"`
	DedupKey    string            `dynamodbav:"dedup_key" json:"-"`
	Seq         int               `dynamodbav:"seq" json:"-"` // per-user use index under the dedup key
	Name        string            `dynamodbav:"name" json:"name"`
	Description string            `dynamodbav:"description" json:"description,omitempty"`
	Points      int               `dynamodbav:"points" json:"points"`
	Year        int               `dynamodbav:"year" json:"year"`
	CompletedAt time.Time         `dynamodbav:"completed_at" json:"completed_at"`
	Metadata    map[string]string `dynamodbav:"metadata" json:"metadata,omitempty"`
}

// QRDedupKey keys activity claims by the scanned code.
func QRDedupKey(codeID string) string {
	return fmt.Sprintf("%s#%s", AchievementTypeActivity, codeID)
}

// FlagDedupKey keys CTF claims by (name, calendar year) rather than code
// id: flags aren't URL-scanned, and the same flag name may be re-claimed
// in a different year.
func FlagDedupKey(name string, year int) string {
	return fmt.Sprintf("%s#%s#%d", AchievementTypeCTFFlag, slug.Make(name), year)
}

// ConnectDedupKey keys social claims by the peer's share hash.
func ConnectDedupKey(peerHash string) string {
	return fmt.Sprintf("%s#%s", AchievementTypeSocial, peerHash)
}
