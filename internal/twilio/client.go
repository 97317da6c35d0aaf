package twilio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pathakanu/remindly/internal/delivery"
	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API used for outbound messages.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client wraps Twilio messaging operations required by the bot.
type Client struct {
	api          messageCreator
	fromWhatsApp string
	logger       zerolog.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
func New(accountSID, authToken, fromWhatsApp string, logger zerolog.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &Client{
		api:          rest.Api,
		fromWhatsApp: fromWhatsApp,
		logger:       logger,
	}
}

// Send delivers a WhatsApp message to the phone number whose digits are recipient.
func (c *Client) Send(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.SendWhatsAppMessage(strconv.FormatInt(recipient, 10), text)
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio's API.
func (c *Client) SendWhatsAppMessage(to, body string) error {
	if c.api == nil {
		return delivery.Permanent(errors.New("twilio client not initialised"))
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return delivery.Permanent(errors.New("twilio sender WhatsApp number is not configured"))
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return delivery.Permanent(errors.New("recipient number missing or invalid"))
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return classify(err)
	}

	if resp != nil && resp.Sid != nil {
		c.logger.Debug().Str("sid", *resp.Sid).Str("to", recipient).Msg("twilio message sent")
	}
	return nil
}

// classify tags REST errors caused by the request itself, which a retry cannot fix.
func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch restErr.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return delivery.Permanent(fmt.Errorf("twilio send message error: %w", err))
		}
	}
	return fmt.Errorf("twilio send message error: %w", err)
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}

// SenderID turns the From field of an inbound webhook ("whatsapp:+15551234567")
// into the numeric user id used for storage and deliveries.
func SenderID(from string) (int64, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:")
	digits = strings.TrimPrefix(digits, "+")
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid WhatsApp sender %q", from)
	}
	return id, nil
}

// WriteResponse answers a webhook with a single TwiML message.
func WriteResponse(w http.ResponseWriter, message string) error {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}{
		Message: message,
	}

	w.Header().Set("Content-Type", "application/xml")
	return xml.NewEncoder(w).Encode(twiml)
}
