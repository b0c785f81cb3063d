package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

// TOTPValidator verifies time-based proof codes against otpauth:// TOTP
// secret URIs. It has no side effects beyond computation and is safe
// for concurrent use; Now is injectable for tests.
type TOTPValidator struct {
	Now func() time.Time
}

func NewTOTPValidator() *TOTPValidator {
	return &TOTPValidator{Now: time.Now}
}

const (
	defaultTOTPPeriod = 30
	defaultTOTPDigits = 6
	maxTOTPDigits     = 10
)

type totpParams struct {
	secret []byte
	period int64
	digits int
	algo   func() hash.Hash
}

// parseSecretURI extracts secret, period, digits and algorithm from an
// otpauth://totp/... URI. Anything malformed is an error; the caller
// fails closed.
func parseSecretURI(raw string) (*totpParams, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secret URI: %w", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		return nil, fmt.Errorf("unsupported secret URI scheme %q", u.Scheme+"://"+u.Host)
	}

	q := u.Query()
	encoded := strings.ToUpper(strings.TrimSpace(q.Get("secret")))
	encoded = strings.TrimRight(encoded, "=")
	if encoded == "" {
		return nil, fmt.Errorf("secret URI has no secret parameter")
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid base32: %w", err)
	}

	p := &totpParams{
		secret: secret,
		period: defaultTOTPPeriod,
		digits: defaultTOTPDigits,
		algo:   sha1.New,
	}

	if raw := q.Get("period"); raw != "" {
		var period int64
		if _, err := fmt.Sscanf(raw, "%d", &period); err != nil || period <= 0 {
			return nil, fmt.Errorf("invalid period %q", raw)
		}
		p.period = period
	}
	if raw := q.Get("digits"); raw != "" {
		var digits int
		if _, err := fmt.Sscanf(raw, "%d", &digits); err != nil || digits < 1 || digits > maxTOTPDigits {
			return nil, fmt.Errorf("invalid digit count %q", raw)
		}
		p.digits = digits
	}
	switch strings.ToUpper(q.Get("algorithm")) {
	case "", "SHA1":
		p.algo = sha1.New
	case "SHA256":
		p.algo = sha256.New
	case "SHA512":
		p.algo = sha512.New
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", q.Get("algorithm"))
	}

	return p, nil
}

// Validate reports whether candidate matches a TOTP value computable
// within ±window time steps of the current instant. The first matching
// offset wins. Malformed URIs, bad base32 and wrong-shape candidates
// all return false; nothing escapes as a panic or error.
func (v *TOTPValidator) Validate(secretURI, candidate string, window int) bool {
	params, err := parseSecretURI(secretURI)
	if err != nil {
		return false
	}

	candidate = strings.TrimSpace(candidate)
	if len(candidate) != params.digits {
		return false
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return false
		}
	}
	if window < 0 {
		window = 0
	}

	current := v.Now().Unix() / params.period
	for offset := -int64(window); offset <= int64(window); offset++ {
		counter := current + offset
		if counter < 0 {
			continue
		}
		if hotpCode(params, uint64(counter)) == candidate {
			return true
		}
	}
	return false
}

// hotpCode computes the RFC 4226 value for one counter: HMAC over the
// big-endian counter, dynamic truncation to a 31-bit integer, reduced
// modulo 10^digits and zero-padded.
func hotpCode(p *totpParams, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(p.algo, p.secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	// 10^10 overflows uint32, so the modulus is accumulated in uint64.
	mod := uint64(1)
	for i := 0; i < p.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", p.digits, uint64(truncated)%mod)
}
