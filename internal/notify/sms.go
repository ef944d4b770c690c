package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/order"
)

// Doer executes outbound HTTP requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ErrInvalidPhone is returned when a phone number cannot be normalised.
var ErrInvalidPhone = errors.New("notify: invalid phone number")

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender delivers SMS through the Twilio Messages API.
type TwilioSender struct {
	HTTP           Doer
	AccountSID     string
	AuthToken      string
	From           string
	BaseURL        string
	DefaultCountry string
}

// Send posts a single message to the given number.
func (s TwilioSender) Send(ctx context.Context, to, body string) error {
	if s.HTTP == nil {
		return errors.New("notify: twilio http client not configured")
	}
	phone, err := FormatE164(to, s.DefaultCountry)
	if err != nil {
		return err
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", s.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(s.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.AccountSID, s.AuthToken)

	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FormatE164 normalises a phone number to E.164. Numbers without a leading
// plus are prefixed with defaultCountry.
func FormatE164(raw, defaultCountry string) (string, error) {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return "", ErrInvalidPhone
	}
	if !plus {
		cc := strings.TrimPrefix(strings.TrimSpace(defaultCountry), "+")
		if cc == "" {
			cc = "1"
		}
		d = cc + d
	}
	if len(d) < 8 || len(d) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + d, nil
}

// ConfirmationSMS builds the order confirmation text message.
func ConfirmationSMS(o order.Order, trackingURL string) string {
	name := strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return -1
		}
		return r
	}, o.Customer.Name)
	name = strings.TrimSpace(truncate(name, 50))
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! Your order #%s for %s%s has been confirmed. Track your order: %s",
		name, shortID(o.ID.String()), currencySymbol(o.Currency), catalog.MajorString(o.Total), trackingURL)
}
