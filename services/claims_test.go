package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"event-gamification-system/models"
	"event-gamification-system/stores"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type stubCodes struct {
	defs map[string]*models.CodeDefinition
	err  error
}

func (s *stubCodes) Lookup(ctx context.Context, id string) (*models.CodeDefinition, error) {
	if s.err != nil {
		return nil, s.err
	}
	def, ok := s.defs[id]
	if !ok {
		return nil, ErrCodeNotFound
	}
	copied := *def
	return &copied, nil
}

func newTestClaimService(defs ...*models.CodeDefinition) (*ClaimService, *stores.MemoryStore) {
	codes := &stubCodes{defs: make(map[string]*models.CodeDefinition)}
	for _, def := range defs {
		codes.defs[def.ID] = def
	}
	mem := stores.NewMemoryStore()
	svc := NewClaimService(mem, mem, codes, NewTOTPValidator())
	svc.Now = func() time.Time { return testNow }
	svc.Validator.Now = svc.Now
	return svc, mem
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func activityDef(id string, mods ...func(*models.CodeDefinition)) *models.CodeDefinition {
	def := &models.CodeDefinition{
		ID:             id,
		Type:           models.AchievementTypeActivity,
		Name:           "Visited " + id,
		Points:         10,
		ExpiryDate:     testNow.Add(24 * time.Hour),
		MaxUsesPerUser: intPtr(1),
	}
	for _, mod := range mods {
		mod(def)
	}
	return def
}

func ctfDef(id string, mods ...func(*models.CodeDefinition)) *models.CodeDefinition {
	def := &models.CodeDefinition{
		ID:             id,
		Type:           models.AchievementTypeCTFFlag,
		Name:           "Flag " + id,
		Points:         50,
		ExpiryDate:     testNow.Add(24 * time.Hour),
		MaxUsesPerUser: intPtr(1),
		LiteralFlag:    strPtr("FLAG{" + id + "}"),
	}
	for _, mod := range mods {
		mod(def)
	}
	return def
}

// seedAccomplishment plants an existing record so quota and bootstrap
// rules see prior history.
func seedAccomplishment(t *testing.T, mem *stores.MemoryStore, userID, dedupKey string, typ models.AchievementType) {
	t.Helper()
	err := mem.Create(context.Background(), &models.Accomplishment{
		ID:       uuid.NewString(),
		UserID:   userID,
		Type:     typ,
		DedupKey: dedupKey,
		Year:     testNow.Year(),
	})
	require.NoError(t, err)
}

func TestClaimQRSuccessThenReplay(t *testing.T) {
	svc, _ := newTestClaimService(activityDef("booth-1"))
	ident := Identity{UserID: "u1", Email: "u1@example.com"}

	res, cerr := svc.ClaimQR(context.Background(), ident, "booth-1")
	require.Nil(t, cerr)
	require.Equal(t, 10, res.Points)
	require.Equal(t, 1, res.QuotaUsed)
	require.Equal(t, models.BootstrapQRScanLimit, res.QuotaLimit)
	require.Equal(t, models.BootstrapQRScanLimit-1, res.QuotaRemaining)
	require.Equal(t, "booth-1", res.Accomplishment.Metadata["code_id"])

	// replaying the same claim never creates a second record
	_, cerr = svc.ClaimQR(context.Background(), ident, "booth-1")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindAlreadyClaimed, cerr.Kind)
}

func TestClaimQRGlobalCap(t *testing.T) {
	def := activityDef("keynote", func(d *models.CodeDefinition) {
		d.MaxTotalUses = intPtr(2)
	})
	svc, _ := newTestClaimService(def)

	for i := 1; i <= 2; i++ {
		ident := Identity{UserID: fmt.Sprintf("u%d", i)}
		_, cerr := svc.ClaimQR(context.Background(), ident, "keynote")
		require.Nil(t, cerr)
	}

	// third distinct user is refused even with a clean personal count
	_, cerr := svc.ClaimQR(context.Background(), Identity{UserID: "u3"}, "keynote")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindQuotaExceeded, cerr.Kind)
	require.Equal(t, QuotaScopeGlobal, cerr.Scope)
	require.Equal(t, 2, cerr.Limit)
}

func TestClaimQRBootstrapLimit(t *testing.T) {
	svc, mem := newTestClaimService(activityDef("late-code"))
	ident := Identity{UserID: "u1", Email: "u1@example.com"}

	// zero accomplishments and five scans already burned: limit is 5
	_, err := mem.Ensure(context.Background(), ident.UserID, ident.Email)
	require.NoError(t, err)
	mem.SetQuota(ident.UserID, models.QuotaQRScans, models.DefaultQRScanAllotment-models.BootstrapQRScanLimit)

	_, cerr := svc.ClaimQR(context.Background(), ident, "late-code")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindQuotaExceeded, cerr.Kind)
	require.Equal(t, models.BootstrapQRScanLimit, cerr.Limit)

	// once the user owns any accomplishment the limit widens to 100
	seedAccomplishment(t, mem, ident.UserID, models.FlagDedupKey("starter", testNow.Year()), models.AchievementTypeCTFFlag)

	res, cerr := svc.ClaimQR(context.Background(), ident, "late-code")
	require.Nil(t, cerr)
	require.Equal(t, models.FullQRScanLimit, res.QuotaLimit)
	require.Equal(t, models.BootstrapQRScanLimit+1, res.QuotaUsed)
}

func TestClaimQRLifecycleChecks(t *testing.T) {
	expired := activityDef("gone", func(d *models.CodeDefinition) {
		d.ExpiryDate = testNow.Add(-time.Hour)
	})
	disabled := activityDef("off", func(d *models.CodeDefinition) {
		d.Disabled = true
	})
	svc, _ := newTestClaimService(expired, disabled)
	ident := Identity{UserID: "u1"}

	_, cerr := svc.ClaimQR(context.Background(), ident, "missing")
	require.Equal(t, ErrKindNotFound, cerr.Kind)

	_, cerr = svc.ClaimQR(context.Background(), ident, "gone")
	require.Equal(t, ErrKindExpired, cerr.Kind)

	_, cerr = svc.ClaimQR(context.Background(), ident, "off")
	require.Equal(t, ErrKindDisabled, cerr.Kind)
}

func TestClaimQRUnknownTypeRejected(t *testing.T) {
	weird := activityDef("odd", func(d *models.CodeDefinition) {
		d.Type = models.AchievementType("mystery")
	})
	svc, _ := newTestClaimService(weird)

	_, cerr := svc.ClaimQR(context.Background(), Identity{UserID: "u1"}, "odd")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindNotFound, cerr.Kind)
}

func TestClaimQRUpstreamUnavailable(t *testing.T) {
	svc, _ := newTestClaimService()
	svc.Codes = &stubCodes{err: errors.New("connection refused")}

	// a connectivity failure is never reported as an unknown code
	_, cerr := svc.ClaimQR(context.Background(), Identity{UserID: "u1"}, "booth-1")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindUpstreamUnavailable, cerr.Kind)
}

func TestClaimUnauthenticated(t *testing.T) {
	svc, _ := newTestClaimService(activityDef("booth-1"))

	_, cerr := svc.ClaimQR(context.Background(), Identity{}, "booth-1")
	require.Equal(t, ErrKindUnauthenticated, cerr.Kind)

	_, cerr = svc.ClaimFlag(context.Background(), Identity{}, "x", "", "")
	require.Equal(t, ErrKindUnauthenticated, cerr.Kind)

	_, cerr = svc.ClaimConnect(context.Background(), Identity{}, "hash")
	require.Equal(t, ErrKindUnauthenticated, cerr.Kind)
}

func totpURI() string {
	return "otpauth://totp/Event:flag?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
}

func validProofCode(t *testing.T) string {
	t.Helper()
	params, err := parseSecretURI(totpURI())
	require.NoError(t, err)
	return hotpCode(params, uint64(testNow.Unix()/params.period))
}

func TestClaimFlagWithTOTP(t *testing.T) {
	def := ctfDef("cipher", func(d *models.CodeDefinition) {
		d.ProofSecretURI = strPtr(totpURI())
		d.LiteralFlag = nil
	})
	svc, _ := newTestClaimService(def)
	ident := Identity{UserID: "u1", Email: "u1@example.com"}

	_, cerr := svc.ClaimFlag(context.Background(), ident, "cipher", "000000", "")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindInvalidProof, cerr.Kind)

	res, cerr := svc.ClaimFlag(context.Background(), ident, "cipher", validProofCode(t), "")
	require.Nil(t, cerr)
	require.Equal(t, models.AchievementTypeCTFFlag, res.Accomplishment.Type)
	require.Equal(t, "cipher", res.Accomplishment.Metadata["code_handle"])
}

func TestClaimFlagLiteralOnlySkipsTOTP(t *testing.T) {
	svc, _ := newTestClaimService(ctfDef("plain"))
	ident := Identity{UserID: "u1"}

	// no secret configured: the garbage proof code is irrelevant
	res, cerr := svc.ClaimFlag(context.Background(), ident, "plain", "not-a-code", "FLAG{plain}")
	require.Nil(t, cerr)
	require.NotNil(t, res.Accomplishment)

	svc2, _ := newTestClaimService(ctfDef("plain2"))
	_, cerr = svc2.ClaimFlag(context.Background(), ident, "plain2", "", "FLAG{wrong}")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindInvalidProof, cerr.Kind)
}

func TestClaimFlagRequiresBothProofsWhenConfigured(t *testing.T) {
	def := ctfDef("hard", func(d *models.CodeDefinition) {
		d.ProofSecretURI = strPtr(totpURI())
	})
	svc, _ := newTestClaimService(def)
	ident := Identity{UserID: "u1"}

	_, cerr := svc.ClaimFlag(context.Background(), ident, "hard", validProofCode(t), "FLAG{nope}")
	require.Equal(t, ErrKindInvalidProof, cerr.Kind)

	_, cerr = svc.ClaimFlag(context.Background(), ident, "hard", "000000", "FLAG{hard}")
	require.Equal(t, ErrKindInvalidProof, cerr.Kind)

	res, cerr := svc.ClaimFlag(context.Background(), ident, "hard", validProofCode(t), "FLAG{hard}")
	require.Nil(t, cerr)
	require.NotNil(t, res.Accomplishment)
}

func TestClaimFlagProofFailuresAreIndistinguishable(t *testing.T) {
	def := ctfDef("oracle", func(d *models.CodeDefinition) {
		d.ProofSecretURI = strPtr(totpURI())
	})
	unconfigured := ctfDef("hollow", func(d *models.CodeDefinition) {
		d.ProofSecretURI = nil
		d.LiteralFlag = nil
	})
	svc, _ := newTestClaimService(def, unconfigured)
	ident := Identity{UserID: "u1"}

	_, wrongOTP := svc.ClaimFlag(context.Background(), ident, "oracle", "000000", "FLAG{oracle}")
	_, wrongFlag := svc.ClaimFlag(context.Background(), ident, "oracle", validProofCode(t), "FLAG{bad}")
	_, malformed := svc.ClaimFlag(context.Background(), ident, "", "", "")
	_, hollow := svc.ClaimFlag(context.Background(), ident, "hollow", "", "")

	require.Equal(t, wrongOTP.Message, wrongFlag.Message)
	require.Equal(t, wrongOTP.Message, malformed.Message)
	require.Equal(t, wrongOTP.Message, hollow.Message)
}

func TestClaimFlagDedupByNameAndYear(t *testing.T) {
	def := ctfDef("yearly", func(d *models.CodeDefinition) {
		d.MaxUsesPerUser = intPtr(2)
	})
	svc, _ := newTestClaimService(def)
	ident := Identity{UserID: "u1"}

	for i := 0; i < 2; i++ {
		_, cerr := svc.ClaimFlag(context.Background(), ident, "yearly", "", "FLAG{yearly}")
		require.Nil(t, cerr, "claim %d", i+1)
	}

	// third claim for the same (name, year) is refused, proof or not
	_, cerr := svc.ClaimFlag(context.Background(), ident, "yearly", "", "FLAG{yearly}")
	require.NotNil(t, cerr)
	require.Equal(t, ErrKindAlreadyClaimed, cerr.Kind)

	// a new calendar year starts a fresh dedup key
	svc.Now = func() time.Time { return testNow.AddDate(1, 0, 0) }
	res, cerr := svc.ClaimFlag(context.Background(), ident, "yearly", "", "FLAG{yearly}")
	require.Nil(t, cerr)
	require.Equal(t, testNow.Year()+1, res.Accomplishment.Year)
}

func TestClaimFlagExpiredBeatsValidProof(t *testing.T) {
	def := ctfDef("stale", func(d *models.CodeDefinition) {
		d.ExpiryDate = testNow.Add(-time.Minute)
	})
	svc, _ := newTestClaimService(def)

	_, cerr := svc.ClaimFlag(context.Background(), Identity{UserID: "u1"}, "stale", "", "FLAG{stale}")
	require.Equal(t, ErrKindExpired, cerr.Kind)
}

func TestClaimConnectFlow(t *testing.T) {
	svc, mem := newTestClaimService()
	ctx := context.Background()

	owner, err := mem.Ensure(ctx, "owner", "owner@example.com")
	require.NoError(t, err)
	scannerIdent := Identity{UserID: "scanner", Email: "scanner@example.com"}

	res, cerr := svc.ClaimConnect(ctx, scannerIdent, owner.ShareHash)
	require.Nil(t, cerr)
	require.Equal(t, "scanner", res.ScannerAccomplishment.UserID)
	require.Equal(t, "owner", res.OwnerAccomplishment.UserID)
	require.Equal(t, models.DefaultConnectScanAllotment-1, res.RemainingScans)

	// each record references the other side's hash
	scanner, err := mem.Get(ctx, "scanner")
	require.NoError(t, err)
	require.Equal(t, owner.ShareHash, res.ScannerAccomplishment.Metadata["peer_hash"])
	require.Equal(t, scanner.ShareHash, res.OwnerAccomplishment.Metadata["peer_hash"])

	// repeat in either direction is refused: both sides already hold a
	// record referencing the other's hash
	_, cerr = svc.ClaimConnect(ctx, scannerIdent, owner.ShareHash)
	require.Equal(t, ErrKindAlreadyClaimed, cerr.Kind)

	_, cerr = svc.ClaimConnect(ctx, Identity{UserID: "owner", Email: "owner@example.com"}, scanner.ShareHash)
	require.Equal(t, ErrKindAlreadyClaimed, cerr.Kind)
}

func TestClaimConnectSelfReference(t *testing.T) {
	svc, mem := newTestClaimService()
	ctx := context.Background()

	me, err := mem.Ensure(ctx, "me", "me@example.com")
	require.NoError(t, err)

	// rejected before any quota state is relevant
	mem.SetQuota("me", models.QuotaConnectScans, 0)
	_, cerr := svc.ClaimConnect(ctx, Identity{UserID: "me", Email: "me@example.com"}, me.ShareHash)
	require.Equal(t, ErrKindSelfReference, cerr.Kind)
}

func TestClaimConnectAllotmentExhausted(t *testing.T) {
	svc, mem := newTestClaimService()
	ctx := context.Background()

	owner, err := mem.Ensure(ctx, "owner", "owner@example.com")
	require.NoError(t, err)
	_, err = mem.Ensure(ctx, "scanner", "scanner@example.com")
	require.NoError(t, err)
	mem.SetQuota("scanner", models.QuotaConnectScans, 0)

	_, cerr := svc.ClaimConnect(ctx, Identity{UserID: "scanner"}, owner.ShareHash)
	require.Equal(t, ErrKindQuotaExceeded, cerr.Kind)
	require.Equal(t, QuotaScopeScanAllotment, cerr.Scope)

	// the daily reset restores the allotment
	touched, err := mem.ResetQuota(ctx, models.QuotaConnectScans, models.DefaultConnectScanAllotment)
	require.NoError(t, err)
	require.Equal(t, 2, touched)

	_, cerr = svc.ClaimConnect(ctx, Identity{UserID: "scanner"}, owner.ShareHash)
	require.Nil(t, cerr)
}

func TestClaimConnectUnknownHash(t *testing.T) {
	svc, _ := newTestClaimService()

	_, cerr := svc.ClaimConnect(context.Background(), Identity{UserID: "u1"}, "no-such-hash")
	require.Equal(t, ErrKindNotFound, cerr.Kind)
}
