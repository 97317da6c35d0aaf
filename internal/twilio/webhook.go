package twilio

import (
	"net/http"
	"strings"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's HMAC of the webhook URL and form fields.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks that inbound webhooks were signed with the account auth token.
type Validator struct {
	rv        twclient.RequestValidator
	publicURL string
}

// NewValidator builds a Validator. publicURL is the webhook URL exactly as
// configured in the Twilio console; when empty it is rebuilt from the request.
func NewValidator(authToken, publicURL string) *Validator {
	return &Validator{
		rv:        twclient.NewRequestValidator(authToken),
		publicURL: strings.TrimSpace(publicURL),
	}
}

// Valid reports whether r carries a correct signature. r.ParseForm must have
// been called.
func (v *Validator) Valid(r *http.Request) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return v.rv.Validate(v.requestURL(r), params, signature)
}

func (v *Validator) requestURL(r *http.Request) string {
	if v.publicURL != "" {
		return v.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
