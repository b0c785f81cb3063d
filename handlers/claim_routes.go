// handlers/claim_routes.go
package handlers

import (
	"strconv"

	"event-gamification-system/middleware"
	"event-gamification-system/models"
	"event-gamification-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupClaimRoutes registers the three claim endpoints plus the small
// read surface the claim flows need client-side.
func SetupClaimRoutes(app *fiber.App, claimService *services.ClaimService, leaderboard *services.LeaderboardService) {
	// 🔓 Public read-side view
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "25"))
		if err != nil || limit < 1 {
			limit = 25
		}
		entries, err := leaderboard.Top(c.Context(), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to load leaderboard",
			})
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	// 🔐 Claim routes require user context from the gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/claims/qr/:codeId", func(c *fiber.Ctx) error {
		res, cerr := claimService.ClaimQR(c.Context(), identityFrom(c), c.Params("codeId"))
		if cerr != nil {
			return claimFailure(c, cerr)
		}
		return c.JSON(fiber.Map{
			"message":         res.Message,
			"accomplishment":  res.Accomplishment,
			"points":          res.Points,
			"quota_used":      res.QuotaUsed,
			"quota_limit":     res.QuotaLimit,
			"quota_remaining": res.QuotaRemaining,
		})
	})

	secured.Post("/claims/flag", func(c *fiber.Ctx) error {
		var req struct {
			CodeHandle string `json:"code_handle"`
			ProofCode  string `json:"proof_code"`
			FlagValue  string `json:"flag_value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
		}
		if req.CodeHandle == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "code_handle is required"})
		}

		res, cerr := claimService.ClaimFlag(c.Context(), identityFrom(c), req.CodeHandle, req.ProofCode, req.FlagValue)
		if cerr != nil {
			return claimFailure(c, cerr)
		}
		return c.JSON(fiber.Map{
			"message":        res.Message,
			"accomplishment": res.Accomplishment,
		})
	})

	secured.Get("/claims/connect", func(c *fiber.Ctx) error {
		peerHash := c.Query("h")
		if peerHash == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "missing connect code"})
		}

		res, cerr := claimService.ClaimConnect(c.Context(), identityFrom(c), peerHash)
		if cerr != nil {
			return claimFailure(c, cerr)
		}
		return c.JSON(fiber.Map{
			"message":                res.Message,
			"scanner_accomplishment": res.ScannerAccomplishment,
			"owner_accomplishment":   res.OwnerAccomplishment,
			"remaining_scans":        res.RemainingScans,
		})
	})

	secured.Get("/user/accomplishments", func(c *fiber.Ctx) error {
		ident := identityFrom(c)
		records, err := claimService.Accomplishments.ListForUser(c.Context(), ident.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to load accomplishments",
			})
		}
		return c.JSON(fiber.Map{"accomplishments": records})
	})

	secured.Get("/user/connect-code", func(c *fiber.Ctx) error {
		ident := identityFrom(c)
		user, err := claimService.Users.Ensure(c.Context(), ident.UserID, ident.Email)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to load connect code",
			})
		}
		return c.JSON(fiber.Map{
			"connect_code":    user.ShareHash,
			"remaining_scans": user.QuotaRemaining(models.QuotaConnectScans),
		})
	})
}

func identityFrom(c *fiber.Ctx) services.Identity {
	ident := services.Identity{}
	if v, ok := c.Locals("user_id").(string); ok {
		ident.UserID = v
	}
	if v, ok := c.Locals("user_email").(string); ok {
		ident.Email = v
	}
	return ident
}

// claimFailure maps the pipeline's failure taxonomy onto HTTP statuses:
// 400 malformed/proof, 401 unauthenticated, 404 unknown code or user,
// 410 expired/disabled/exhausted, 429 quota, 500 upstream/store.
func claimFailure(c *fiber.Ctx, cerr *services.ClaimError) error {
	status := fiber.StatusInternalServerError
	switch cerr.Kind {
	case services.ErrKindUnauthenticated:
		status = fiber.StatusUnauthorized
	case services.ErrKindNotFound:
		status = fiber.StatusNotFound
	case services.ErrKindExpired, services.ErrKindDisabled, services.ErrKindAlreadyClaimed:
		status = fiber.StatusGone
	case services.ErrKindQuotaExceeded:
		status = fiber.StatusTooManyRequests
	case services.ErrKindInvalidProof, services.ErrKindSelfReference:
		status = fiber.StatusBadRequest
	case services.ErrKindUpstreamUnavailable, services.ErrKindStoreFailure:
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{"message": cerr.Message}
	if cerr.Kind == services.ErrKindQuotaExceeded && cerr.Limit > 0 {
		body["quota_limit"] = cerr.Limit
	}
	return c.Status(status).JSON(body)
}
