package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strconv"
	"strings"

	"event-gamification-system/models"
	"event-gamification-system/stores"

	"github.com/google/uuid"
)

// Points awarded to each side of a connect claim. Activity and CTF
// points come from the code definition; connects have no definition.
const connectPoints = 5

type QRClaimResult struct {
	Message        string
	Accomplishment *models.Accomplishment
	Points         int
	QuotaUsed      int
	QuotaLimit     int
	QuotaRemaining int
}

// ClaimQR awards an activity accomplishment for a scanned code. No
// kind-specific proof: possessing the scanned URL is the proof. The
// QR-scan limit is 5 until the user earns any accomplishment, then the
// full allotment opens up.
func (s *ClaimService) ClaimQR(ctx context.Context, ident Identity, codeID string) (*QRClaimResult, *ClaimError) {
	if ident.UserID == "" {
		return nil, errUnauthenticated()
	}

	def, cerr := s.resolveDefinition(ctx, codeID, models.AchievementTypeActivity)
	if cerr != nil {
		return nil, cerr
	}

	user, err := s.Users.Ensure(ctx, ident.UserID, ident.Email)
	if err != nil {
		return nil, errStoreFailure(err)
	}

	totalOwned, err := s.Accomplishments.CountAllForUser(ctx, user.ID)
	if err != nil {
		return nil, errStoreFailure(err)
	}
	scanLimit := models.FullQRScanLimit
	if totalOwned == 0 {
		scanLimit = models.BootstrapQRScanLimit
	}
	scansUsed := models.DefaultQRScanAllotment - user.QuotaRemaining(models.QuotaQRScans)
	if scansUsed >= scanLimit {
		return nil, errQuotaExceeded(QuotaScopePerUser, scanLimit)
	}

	dedupKey := models.QRDedupKey(def.ID)
	if _, cerr := s.checkCaps(ctx, def, user.ID, dedupKey); cerr != nil {
		return nil, cerr
	}

	// recheck immediately before commit
	counts, cerr := s.checkCaps(ctx, def, user.ID, dedupKey)
	if cerr != nil {
		return nil, cerr
	}

	now := s.Now()
	metadata := map[string]string{"code_id": def.ID}
	if def.Location != nil {
		metadata["location"] = *def.Location
	}
	acc := &models.Accomplishment{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		UserEmail:   user.Email,
		Type:        models.AchievementTypeActivity,
		DedupKey:    dedupKey,
		Seq:         counts.perUser,
		Name:        def.Name,
		Description: def.Description,
		Points:      def.Points,
		Year:        now.Year(),
		CompletedAt: now,
		Metadata:    metadata,
	}
	if _, cerr := s.commit(ctx, acc, models.QuotaQRScans); cerr != nil {
		return nil, cerr
	}

	used := scansUsed + 1
	return &QRClaimResult{
		Message:        successMessage(def),
		Accomplishment: acc,
		Points:         def.Points,
		QuotaUsed:      used,
		QuotaLimit:     scanLimit,
		QuotaRemaining: scanLimit - used,
	}, nil
}

type FlagClaimResult struct {
	Message        string
	Accomplishment *models.Accomplishment
}

// ClaimFlag awards a CTF accomplishment for a flag submission. Dedup is
// by (flag name, calendar year) rather than code id: flags aren't
// URL-scanned, and the same flag name can be re-claimed next year. The
// proof is a TOTP code when the definition carries a secret, a literal
// flag string when it carries one, and both when both are configured.
func (s *ClaimService) ClaimFlag(ctx context.Context, ident Identity, handle, proofCode, flagValue string) (*FlagClaimResult, *ClaimError) {
	if ident.UserID == "" {
		return nil, errUnauthenticated()
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errInvalidProof()
	}

	def, cerr := s.resolveDefinition(ctx, handle, models.AchievementTypeCTFFlag)
	if cerr != nil {
		return nil, cerr
	}

	user, err := s.Users.Ensure(ctx, ident.UserID, ident.Email)
	if err != nil {
		return nil, errStoreFailure(err)
	}
	if user.QuotaRemaining(models.QuotaProofAttempts) <= 0 {
		return nil, errQuotaExceeded(QuotaScopePerUser, models.DefaultProofAttemptAllotment)
	}

	year := s.Now().Year()
	dedupKey := models.FlagDedupKey(def.Name, year)
	if _, cerr := s.checkCaps(ctx, def, user.ID, dedupKey); cerr != nil {
		return nil, cerr
	}

	// Every failure below is reported with the same generic message,
	// whatever actually went wrong.
	if def.ProofSecretURI == nil && def.LiteralFlag == nil {
		log.Printf("⚠️ [CLAIMS] CTF code %s has neither secret nor flag configured — rejecting", def.ID)
		return nil, errInvalidProof()
	}
	if def.ProofSecretURI != nil {
		if !s.Validator.Validate(*def.ProofSecretURI, strings.TrimSpace(proofCode), s.ProofWindow) {
			return nil, errInvalidProof()
		}
	}
	if def.LiteralFlag != nil {
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(flagValue)), []byte(*def.LiteralFlag)) != 1 {
			return nil, errInvalidProof()
		}
	}

	counts, cerr := s.checkCaps(ctx, def, user.ID, dedupKey)
	if cerr != nil {
		return nil, cerr
	}

	now := s.Now()
	acc := &models.Accomplishment{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		UserEmail:   user.Email,
		Type:        models.AchievementTypeCTFFlag,
		DedupKey:    dedupKey,
		Seq:         counts.perUser,
		Name:        def.Name,
		Description: def.Description,
		Points:      def.Points,
		Year:        year,
		CompletedAt: now,
		Metadata: map[string]string{
			"code_handle": def.ID,
			"name":        def.Name,
			"year":        strconv.Itoa(year),
		},
	}
	if _, cerr := s.commit(ctx, acc, models.QuotaProofAttempts); cerr != nil {
		return nil, cerr
	}

	return &FlagClaimResult{
		Message:        successMessage(def),
		Accomplishment: acc,
	}, nil
}

type ConnectClaimResult struct {
	Message               string
	ScannerAccomplishment *models.Accomplishment
	OwnerAccomplishment   *models.Accomplishment
	RemainingScans        int
}

// ClaimConnect awards social accomplishments to both sides of a peer
// scan. Possessing the peer's share hash is the proof. A successful
// claim writes two records, one per participant, each referencing the
// other's hash.
func (s *ClaimService) ClaimConnect(ctx context.Context, ident Identity, peerHash string) (*ConnectClaimResult, *ClaimError) {
	if ident.UserID == "" {
		return nil, errUnauthenticated()
	}
	peerHash = strings.TrimSpace(peerHash)
	if peerHash == "" {
		return nil, errNotFound("connect code")
	}

	peer, err := s.Users.GetByShareHash(ctx, peerHash)
	if errors.Is(err, stores.ErrNotFound) {
		return nil, errNotFound("connect code")
	}
	if err != nil {
		return nil, errStoreFailure(err)
	}

	// rejected before any quota or dedup work
	if peer.ID == ident.UserID {
		return nil, errSelfReference()
	}

	scanner, err := s.Users.Ensure(ctx, ident.UserID, ident.Email)
	if err != nil {
		return nil, errStoreFailure(err)
	}
	if scanner.QuotaRemaining(models.QuotaConnectScans) <= 0 {
		return nil, errQuotaExceeded(QuotaScopeScanAllotment, models.DefaultConnectScanAllotment)
	}

	dedupKey := models.ConnectDedupKey(peer.ShareHash)
	already, err := s.Accomplishments.CountForUser(ctx, scanner.ID, dedupKey)
	if err != nil {
		return nil, errStoreFailure(err)
	}
	if already > 0 {
		return nil, errAlreadyClaimed()
	}

	now := s.Now()
	scannerAcc := &models.Accomplishment{
		ID:          uuid.NewString(),
		UserID:      scanner.ID,
		UserEmail:   scanner.Email,
		Type:        models.AchievementTypeSocial,
		DedupKey:    dedupKey,
		Name:        "New connection",
		Description: "You connected with another attendee.",
		Points:      connectPoints,
		Year:        now.Year(),
		CompletedAt: now,
		Metadata:    map[string]string{"peer_hash": peer.ShareHash},
	}
	ownerAcc := &models.Accomplishment{
		ID:          uuid.NewString(),
		UserID:      peer.ID,
		UserEmail:   peer.Email,
		Type:        models.AchievementTypeSocial,
		DedupKey:    models.ConnectDedupKey(scanner.ShareHash),
		Name:        "New connection",
		Description: "Another attendee connected with you.",
		Points:      connectPoints,
		Year:        now.Year(),
		CompletedAt: now,
		Metadata:    map[string]string{"peer_hash": scanner.ShareHash},
	}

	if err := s.Accomplishments.Create(ctx, scannerAcc); err != nil {
		if errors.Is(err, stores.ErrDuplicate) {
			return nil, errAlreadyClaimed()
		}
		return nil, errStoreFailure(err)
	}
	if err := s.Accomplishments.Create(ctx, ownerAcc); err != nil {
		// The scanner's record stands either way; completed writes are
		// never rolled back. A duplicate means a concurrent reverse
		// scan already credited the peer.
		if !errors.Is(err, stores.ErrDuplicate) {
			log.Printf("🚨 [CLAIMS] Scanner record %s committed but peer record failed: %v", scannerAcc.ID, err)
		}
	}

	remaining, err := s.Users.DecrementQuota(ctx, scanner.ID, models.QuotaConnectScans)
	if errors.Is(err, stores.ErrQuotaEmpty) {
		log.Printf("⚠️ [CLAIMS] Connect allotment for %s hit zero between check and commit", scanner.ID)
		remaining = 0
	} else if err != nil {
		log.Printf("🚨 [CLAIMS] Connect records committed but allotment for %s not decremented: %v", scanner.ID, err)
		return nil, errStoreFailure(err)
	}

	return &ConnectClaimResult{
		Message:               "You're now connected!",
		ScannerAccomplishment: scannerAcc,
		OwnerAccomplishment:   ownerAcc,
		RemainingScans:        remaining,
	}, nil
}
