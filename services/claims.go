package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"event-gamification-system/models"
	"event-gamification-system/stores"
)

// Identity is the caller's auth context, resolved by the gateway and
// trusted opaquely; this service performs no authentication itself.
type Identity struct {
	UserID string
	Email  string
}

// ClaimService runs the shared claim pipeline for all three claim
// kinds: resolve identity → resolve definition → usage counts → caps →
// kind-specific proof → recheck → commit → respond.
//
// Each claim executes as one independent unit of work; there is no
// cross-request state here. Per-user duplicate prevention rests on the
// store's conditional create. The global cap is still check-then-create:
// two concurrent claims by different users can both pass it. The
// recheck before commit narrows that window, it does not close it.
type ClaimService struct {
	Accomplishments stores.AccomplishmentStore
	Users           stores.UserStore
	Codes           CodeDefinitionProvider
	Validator       *TOTPValidator

	// ProofWindow is the ± range of TOTP time steps accepted.
	ProofWindow int
	Now         func() time.Time
}

func NewClaimService(acc stores.AccomplishmentStore, users stores.UserStore, codes CodeDefinitionProvider, validator *TOTPValidator) *ClaimService {
	return &ClaimService{
		Accomplishments: acc,
		Users:           users,
		Codes:           codes,
		Validator:       validator,
		ProofWindow:     1,
		Now:             time.Now,
	}
}

// resolveDefinition looks up the code and applies the terminal
// lifecycle checks in their fixed order: not found, expired, disabled.
// No quota work happens past a failure here.
func (s *ClaimService) resolveDefinition(ctx context.Context, codeID string, want models.AchievementType) (*models.CodeDefinition, *ClaimError) {
	if codeID == "" {
		return nil, errNotFound("code")
	}

	def, err := s.Codes.Lookup(ctx, codeID)
	if errors.Is(err, ErrCodeNotFound) {
		return nil, errNotFound("code")
	}
	if err != nil {
		// connectivity is not the same thing as absence
		log.Printf("⚠️ [CLAIMS] Code lookup failed for %s: %v", codeID, err)
		return nil, errUpstreamUnavailable(err)
	}

	typ, ok := models.ParseAchievementType(string(def.Type))
	if !ok {
		log.Printf("⚠️ [CLAIMS] Code %s has unknown achievement type %q — rejecting", def.ID, def.Type)
		return nil, errNotFound("code")
	}
	if typ != want {
		log.Printf("⚠️ [CLAIMS] Code %s is type %q, claimed as %q", def.ID, typ, want)
		return nil, errNotFound("code")
	}

	if def.Expired(s.Now()) {
		return nil, errExpired()
	}
	if def.Disabled {
		return nil, errDisabled()
	}
	return def, nil
}

type usageCounts struct {
	perUser int
	global  int
}

// checkCaps computes the per-user and global usage for a dedup key and
// enforces the definition's caps. Called twice per claim: once up
// front, once immediately before commit.
func (s *ClaimService) checkCaps(ctx context.Context, def *models.CodeDefinition, userID, dedupKey string) (usageCounts, *ClaimError) {
	var counts usageCounts
	var err error

	counts.perUser, err = s.Accomplishments.CountForUser(ctx, userID, dedupKey)
	if err != nil {
		return counts, errStoreFailure(err)
	}
	if def.MaxUsesPerUser != nil && counts.perUser >= *def.MaxUsesPerUser {
		return counts, errAlreadyClaimed()
	}

	if def.MaxTotalUses != nil {
		counts.global, err = s.Accomplishments.CountGlobal(ctx, dedupKey)
		if err != nil {
			return counts, errStoreFailure(err)
		}
		if counts.global >= *def.MaxTotalUses {
			return counts, errQuotaExceeded(QuotaScopeGlobal, *def.MaxTotalUses)
		}
	}
	return counts, nil
}

// commit creates the record, then decrements the quota counter. These
// are two separate single-item writes against a store with no
// cross-item transactions. A failure between them leaves the record in
// place with the quota untouched; that inconsistency is logged and
// accepted, never patched with a fabricated rollback.
func (s *ClaimService) commit(ctx context.Context, acc *models.Accomplishment, quotaCounter string) (int, *ClaimError) {
	if err := s.Accomplishments.Create(ctx, acc); err != nil {
		if errors.Is(err, stores.ErrDuplicate) {
			// lost the conditional-create race to a concurrent claim
			return 0, errAlreadyClaimed()
		}
		return 0, errStoreFailure(err)
	}

	remaining, err := s.Users.DecrementQuota(ctx, acc.UserID, quotaCounter)
	if errors.Is(err, stores.ErrQuotaEmpty) {
		log.Printf("⚠️ [CLAIMS] Quota %s for %s hit zero between check and commit; record %s stands", quotaCounter, acc.UserID, acc.ID)
		return 0, nil
	}
	if err != nil {
		log.Printf("🚨 [CLAIMS] Record %s committed but quota %s for %s not decremented: %v", acc.ID, quotaCounter, acc.UserID, err)
		return 0, errStoreFailure(err)
	}
	return remaining, nil
}

func successMessage(def *models.CodeDefinition) string {
	if def.SuccessMessage != "" {
		return def.SuccessMessage
	}
	return fmt.Sprintf("Accomplishment unlocked: %s!", def.Name)
}
