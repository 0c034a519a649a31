package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-auth-token"

func TestValidateRequest_AcceptsValidSignature(t *testing.T) {
	form := url.Values{}
	form.Set("ConferenceSid", "CF123")
	form.Set("SpeechResult", "I want a refund")

	r := httptest.NewRequest("POST", "/webhooks/turn/respond", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(SignatureHeader,
		computeSignature(testToken, "https://parley.example.com/webhooks/turn/respond", form))

	v := NewValidator(testToken, ModeStrict, "https://parley.example.com")
	assert.NoError(t, v.ValidateRequest(r))
}

func TestValidateRequest_RejectsBadSignature(t *testing.T) {
	form := url.Values{}
	form.Set("ConferenceSid", "CF123")

	r := httptest.NewRequest("POST", "/webhooks/turn/respond", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(SignatureHeader, "bogus-signature")

	v := NewValidator(testToken, ModeStrict, "https://parley.example.com")
	assert.ErrorIs(t, v.ValidateRequest(r), ErrSignatureMismatch)
}

func TestValidateRequest_RejectsTamperedParams(t *testing.T) {
	form := url.Values{}
	form.Set("SpeechResult", "original")

	sig := computeSignature(testToken, "https://parley.example.com/webhooks/turn/respond", form)

	tampered := url.Values{}
	tampered.Set("SpeechResult", "tampered")

	r := httptest.NewRequest("POST", "/webhooks/turn/respond", strings.NewReader(tampered.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(SignatureHeader, sig)

	v := NewValidator(testToken, ModeStrict, "https://parley.example.com")
	assert.ErrorIs(t, v.ValidateRequest(r), ErrSignatureMismatch)
}

func TestValidateRequest_MissingSignature(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/turn/respond", nil)

	v := NewValidator(testToken, ModeStrict, "https://parley.example.com")
	assert.ErrorIs(t, v.ValidateRequest(r), ErrMissingSignature)
}

func TestValidateRequest_AmbiguousURLStrictRejects(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/turn/respond", nil)
	r.Header.Set(SignatureHeader, "anything")

	v := NewValidator(testToken, ModeStrict, "")
	assert.ErrorIs(t, v.ValidateRequest(r), ErrNoCanonicalURL)
}

func TestValidateRequest_AmbiguousURLPermissiveAllows(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhooks/turn/respond", nil)
	r.Header.Set(SignatureHeader, "anything")

	v := NewValidator(testToken, ModePermissive, "")
	assert.NoError(t, v.ValidateRequest(r))
}

func TestValidateRequest_QueryStringIncludedInCanonicalURL(t *testing.T) {
	form := url.Values{}
	form.Set("ConferenceSid", "CF123")

	canonical := "https://parley.example.com/webhooks/turn/listen?role=agent&persona=support-agent"
	r := httptest.NewRequest("POST", "/webhooks/turn/listen?role=agent&persona=support-agent",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(SignatureHeader, computeSignature(testToken, canonical, form))

	v := NewValidator(testToken, ModeStrict, "https://parley.example.com")
	assert.NoError(t, v.ValidateRequest(r))
}

func TestComputeSignature_SortsParameters(t *testing.T) {
	a := url.Values{}
	a.Set("Zebra", "1")
	a.Set("Alpha", "2")

	b := url.Values{}
	b.Set("Alpha", "2")
	b.Set("Zebra", "1")

	sigA := computeSignature(testToken, "https://example.com/x", a)
	sigB := computeSignature(testToken, "https://example.com/x", b)
	require.Equal(t, sigA, sigB)
}

func TestInstruction_Builders(t *testing.T) {
	in := Instruction{}.Say("hello").Listen("/webhooks/turn/respond")

	require.Len(t, in.Steps, 2)
	assert.Equal(t, ActionSay, in.Steps[0].Action)
	assert.Equal(t, "hello", in.Steps[0].Text)
	assert.Equal(t, ActionListen, in.Steps[1].Action)
	assert.True(t, in.HasAction(ActionListen))
	assert.False(t, in.HasAction(ActionHangup))
}
