/*
Package composer turns a checkout Order into the WhatsApp message the customer
sends to the merchant, and into the wa.me deep link that opens it.

The message layout is fixed: merchants only edit the greeting, introduction
and closing lines of their MessageTemplate and toggle the phone and comments
sections.
*/
package composer

import (
	"fmt"
	"strings"

	"github.com/tutaviendo/storefront/internal/currency"
	"github.com/tutaviendo/storefront/pkg/models"
)

// Section labels of the order message.
const (
	ItemsHeader   = "*Pedido:*"
	TotalLabel    = "Total:"
	PaymentLabel  = "*Método de pago:*"
	DeliveryLabel = "*Método de entrega:*"
	AddressLabel  = "*Dirección:*"
	CommentsLabel = "*Comentarios:*"
	PhoneLabel    = "*Teléfono:*"
)

// ComposeMessage renders order with template. It never fails: optional
// fields that are blank or switched off in the template are left out.
func ComposeMessage(order models.Order, template models.MessageTemplate) string {
	render := func(s string) string {
		return models.Render(s, order.StoreName, order.CustomerName)
	}

	var b strings.Builder

	b.WriteString(render(template.Greeting))
	b.WriteString("\n\n")
	b.WriteString(render(template.Introduction))
	b.WriteString("\n\n")

	b.WriteString(ItemsHeader)
	b.WriteString("\n")
	var subtotal float64
	for _, item := range order.Items {
		lineTotal := item.Subtotal()
		subtotal += lineTotal

		b.WriteString("  - ")
		b.WriteString(item.Product.Name)
		if item.Quantity > 1 {
			fmt.Fprintf(&b, " (x%d)", item.Quantity)
		}
		b.WriteString(" - ")
		b.WriteString(currency.Format(lineTotal, order.CurrencyCode))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "*%s %s*\n\n", TotalLabel, currency.Format(subtotal+order.DeliveryCost, order.CurrencyCode))

	fmt.Fprintf(&b, "%s %s\n", PaymentLabel, order.PaymentMethodLabel)
	fmt.Fprintf(&b, "%s %s", DeliveryLabel, order.DeliveryMethodLabel)
	if order.DeliveryCost > 0 {
		fmt.Fprintf(&b, " (%s)", currency.Format(order.DeliveryCost, order.CurrencyCode))
	}
	b.WriteString("\n")
	if address := strings.TrimSpace(order.Address); address != "" {
		fmt.Fprintf(&b, "%s %s\n", AddressLabel, address)
	}

	var extras []string
	if comments := strings.TrimSpace(order.Comments); template.IncludeComments && comments != "" {
		extras = append(extras, CommentsLabel+" "+comments)
	}
	if phone := strings.TrimSpace(order.CustomerPhone); template.IncludePhone && phone != "" {
		extras = append(extras, PhoneLabel+" "+phone)
	}
	if len(extras) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(extras, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(render(template.Closing))

	return b.String()
}
