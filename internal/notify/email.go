package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/order"
)

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": catalog.MajorString,
}).Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
    <h1>Order Confirmed!</h1>
    <p>Hi {{.Name}},</p>
    <p>Thank you for your order! We've received your order and it's being prepared.</p>
    <h2>Order Details</h2>
    <p><strong>Order ID:</strong> {{.OrderID}}</p>
    <table style="width: 100%; border-collapse: collapse;">
      <thead>
        <tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
      </thead>
      <tbody>
        {{- range .Items}}
        <tr>
          <td>{{.Label}}</td>
          <td align="center">{{.Quantity}}</td>
          <td align="right">{{$.Symbol}}{{money .UnitPrice}}</td>
          <td align="right">{{$.Symbol}}{{money .LineTotal}}</td>
        </tr>
        {{- end}}
      </tbody>
      <tfoot>
        <tr><td colspan="3" align="right"><strong>Total:</strong></td><td align="right"><strong>{{.Symbol}}{{money .Total}}</strong></td></tr>
      </tfoot>
    </table>
    {{- if .TrackingURL}}
    <p><a href="{{.TrackingURL}}">Track your order</a></p>
    {{- end}}
  </body>
</html>
`))

type confirmationView struct {
	Name        string
	OrderID     string
	Items       []order.Item
	Total       int64
	Symbol      string
	TrackingURL string
}

// RenderConfirmation renders the confirmation email. Customer-supplied text is
// escaped by html/template.
func RenderConfirmation(o order.Order, trackingURL string) (subject, html string, err error) {
	var buf bytes.Buffer
	err = confirmationTmpl.Execute(&buf, confirmationView{
		Name:        truncate(o.Customer.Name, 100),
		OrderID:     o.ID.String(),
		Items:       o.Items,
		Total:       o.Total,
		Symbol:      currencySymbol(o.Currency),
		TrackingURL: trackingURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("render confirmation: %w", err)
	}
	return fmt.Sprintf("Order Confirmed - #%s", shortID(o.ID.String())), buf.String(), nil
}

// LogEmailSender records outgoing mail in the log instead of delivering it.
type LogEmailSender struct {
	Logger zerolog.Logger
	From   string
}

// Send implements common.EmailSender.
func (s LogEmailSender) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Logger.Info().
		Str("from", s.From).
		Str("to", to).
		Str("subject", subject).
		Int("bytes", len(html)).
		Msg("email delivery disabled; message logged")
	return nil
}

func currencySymbol(code string) string {
	switch code {
	case "INR":
		return "₹"
	case "USD":
		return "$"
	default:
		return code + " "
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
