package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/email"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var fiatSymbols = map[string]string{
	"usd": "$",
	"cad": "CA$",
	"eur": "€",
	"gbp": "£",
}

// FormatAmount renders minor units for display. Points are whole units and
// read "N ⚡ Dust".
func FormatAmount(amount int64, currencyCode string) string {
	c, err := types.ParseCurrency(currencyCode)
	if err != nil {
		return fmt.Sprintf("%d %s", amount, strings.ToUpper(currencyCode))
	}
	if c.IsPoints() {
		return decimal.NewFromInt(amount).StringFixed(0) + " ⚡ Dust"
	}
	value := decimal.New(amount, -2).StringFixed(2)
	if symbol, ok := fiatSymbols[c.Code]; ok {
		return symbol + value
	}
	return value + " " + strings.ToUpper(c.Code)
}

type lineView struct {
	Title    string
	Quantity int
	Price    string
	Subtotal string
}

type confirmationView struct {
	Name          string
	OrderID       string
	Lines         []lineView
	Total         string
	PaymentMethod string
	Address       *types.ShippingAddress
}

type statusView struct {
	OrderID  string
	Status   string
	Tracking *types.Tracking
}

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation").Parse(`<h1>Thanks for your order{{if .Name}}, {{.Name}}{{end}}!</h1>
<p>Order <strong>{{.OrderID}}</strong> is confirmed.</p>
<table>
{{range .Lines}}<tr><td>{{.Title}}</td><td>{{.Quantity}} × {{.Price}}</td><td>{{.Subtotal}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{.Total}}</strong> (paid with {{.PaymentMethod}})</p>
{{with .Address}}<p>Shipping to {{.Address1}}{{if .Address2}}, {{.Address2}}{{end}}, {{.City}} {{.PostalCode}}, {{.CountryCode}}</p>{{end}}`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation").Parse(`Thanks for your order{{if .Name}}, {{.Name}}{{end}}!
Order {{.OrderID}} is confirmed.
{{range .Lines}}
- {{.Title}}: {{.Quantity}} x {{.Price}} = {{.Subtotal}}{{end}}

Total: {{.Total}} (paid with {{.PaymentMethod}})
`))

var statusHTML = htmltemplate.Must(htmltemplate.New("status").Parse(`<p>Order <strong>{{.OrderID}}</strong> is now {{.Status}}.</p>
{{with .Tracking}}{{if .Carrier}}<p>Carrier: {{.Carrier}}</p>{{end}}{{if .TrackingNumber}}<p>Tracking number: {{.TrackingNumber}}</p>{{end}}{{if .TrackingURL}}<p><a href="{{.TrackingURL}}">Track your package</a></p>{{end}}{{end}}`))

var statusText = texttemplate.Must(texttemplate.New("status").Parse(`Order {{.OrderID}} is now {{.Status}}.
{{with .Tracking}}{{if .Carrier}}Carrier: {{.Carrier}}
{{end}}{{if .TrackingNumber}}Tracking number: {{.TrackingNumber}}
{{end}}{{if .TrackingURL}}Track: {{.TrackingURL}}
{{end}}{{end}}`))

func renderConfirmation(evt payloads.OrderConfirmedEvent) (email.Message, error) {
	view := confirmationView{
		Name:          evt.CustomerName,
		OrderID:       evt.OrderID,
		Total:         FormatAmount(evt.Total, evt.CurrencyCode),
		PaymentMethod: string(evt.PaymentMethod),
		Address:       evt.ShippingAddress,
	}
	if evt.PaymentMethod == enums.PaymentMethodPoints {
		view.PaymentMethod = "Dust"
	}
	for _, line := range evt.Items {
		view.Lines = append(view.Lines, lineView{
			Title:    line.Title,
			Quantity: line.Quantity,
			Price:    FormatAmount(line.UnitAmount, line.CurrencyCode),
			Subtotal: FormatAmount(line.UnitAmount*int64(line.Quantity), line.CurrencyCode),
		})
	}
	return render(evt.Email, "Your order "+evt.OrderID+" is confirmed", confirmationHTML, confirmationText, view)
}

func renderStatus(evt payloads.OrderStatusChangedEvent) (email.Message, error) {
	view := statusView{OrderID: evt.OrderID, Status: string(evt.To), Tracking: evt.Tracking}
	subject := fmt.Sprintf("Your order %s is %s", evt.OrderID, evt.To)
	if evt.To == enums.OrderStatusShipped {
		subject = fmt.Sprintf("Your order %s has shipped", evt.OrderID)
	}
	return render(evt.Email, subject, statusHTML, statusText, view)
}

func render(to, subject string, html *htmltemplate.Template, text *texttemplate.Template, view any) (email.Message, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := html.Execute(&htmlBuf, view); err != nil {
		return email.Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := text.Execute(&textBuf, view); err != nil {
		return email.Message{}, fmt.Errorf("render text: %w", err)
	}
	return email.Message{
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}
