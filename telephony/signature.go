// Package telephony covers the boundary with the telephony platform: inbound
// callback authentication and the voice instructions returned to it.
package telephony

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // mandated by the platform's signature scheme
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/parleylabs/parley/logger"
)

// SignatureHeader carries the platform's request signature.
const SignatureHeader = "X-Twilio-Signature"

// ValidationMode selects the authenticator's failure behavior when the
// canonical URL cannot be reconstructed.
type ValidationMode string

// Validation modes. Strict rejects requests whose canonical URL cannot be
// determined; permissive fails open with a warning, which suits deployments
// behind proxies that mangle the Host header.
const (
	ModeStrict     ValidationMode = "strict"
	ModePermissive ValidationMode = "permissive"
)

// Authentication errors.
var (
	ErrMissingSignature  = errors.New("request has no signature header")
	ErrSignatureMismatch = errors.New("request signature does not match")
	ErrNoCanonicalURL    = errors.New("cannot reconstruct canonical request URL")
)

// Validator checks that an inbound callback genuinely originates from the
// telephony platform. It must run before any other processing: on failure
// the caller responds 403 and stops.
type Validator struct {
	authToken     string
	mode          ValidationMode
	publicBaseURL string
}

// NewValidator creates a request validator. publicBaseURL is the externally
// visible base URL of this service (scheme and host, no trailing slash);
// when empty the canonical URL is ambiguous and the mode decides the outcome.
func NewValidator(authToken string, mode ValidationMode, publicBaseURL string) *Validator {
	if mode != ModeStrict {
		mode = ModePermissive
	}
	return &Validator{
		authToken:     authToken,
		mode:          mode,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// ValidateRequest verifies the signature header against the canonical URL
// and the sorted POST parameters. The request form is parsed as a side
// effect.
func (v *Validator) ValidateRequest(r *http.Request) error {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return ErrMissingSignature
	}

	if v.publicBaseURL == "" {
		if v.mode == ModePermissive {
			logger.Warn("skipping signature validation: no public base URL configured",
				"path", r.URL.Path)
			return nil
		}
		return ErrNoCanonicalURL
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("failed to parse request form: %w", err)
	}

	canonical := v.publicBaseURL + r.URL.RequestURI()
	expected := computeSignature(v.authToken, canonical, r.PostForm)

	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return ErrSignatureMismatch
	}

	return nil
}

// computeSignature implements the platform's scheme: HMAC-SHA1 over the
// canonical URL concatenated with each POST parameter name and value in
// lexicographic key order, base64-encoded.
func computeSignature(authToken, canonicalURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(canonicalURL)
	for _, k := range keys {
		for _, val := range params[k] {
			sb.WriteString(k)
			sb.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
