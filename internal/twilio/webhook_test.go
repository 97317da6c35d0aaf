package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

// sign computes the X-Twilio-Signature value for a form POST to rawURL.
func sign(authToken, rawURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := rawURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookRequest(target string, form url.Values, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	if err := req.ParseForm(); err != nil {
		panic(err)
	}
	return req
}

func TestValidatorAcceptsSignedRequest(t *testing.T) {
	const publicURL = "https://remindly.example.com/twilio/webhook"
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"/view"}}
	v := NewValidator("secret", publicURL)

	req := webhookRequest("/twilio/webhook", form, sign("secret", publicURL, form))
	if !v.Valid(req) {
		t.Fatal("expected signed request to validate")
	}
}

func TestValidatorRebuildsURLFromRequest(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"/view"}}
	v := NewValidator("secret", "")

	req := webhookRequest("http://bot.internal:8080/twilio/webhook", form, "")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set(SignatureHeader, sign("secret", "https://bot.internal:8080/twilio/webhook", form))
	if !v.Valid(req) {
		t.Fatal("expected request signed for the forwarded URL to validate")
	}
}

func TestValidatorRejectsBadSignatures(t *testing.T) {
	const publicURL = "https://remindly.example.com/twilio/webhook"
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"/delete 1"}}
	v := NewValidator("secret", publicURL)

	cases := map[string]string{
		"missing":     "",
		"wrong token": sign("other", publicURL, form),
		"wrong url":   sign("secret", "https://evil.example.com/twilio/webhook", form),
		"tampered":    sign("secret", publicURL, url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"/view"}}),
	}
	for name, signature := range cases {
		if v.Valid(webhookRequest("/twilio/webhook", form, signature)) {
			t.Errorf("%s: expected signature to be rejected", name)
		}
	}
}
