package models

import "strings"

// Placeholder tokens recognised in a MessageTemplate. No other token is
// substituted.
const (
	PlaceholderStoreName    = "{storeName}"
	PlaceholderCustomerName = "{customerName}"
)

// MessageTemplate is the merchant-editable frame of the order message.
type MessageTemplate struct {
	Greeting        string `json:"greeting" yaml:"greeting"`
	Introduction    string `json:"introduction" yaml:"introduction"`
	Closing         string `json:"closing" yaml:"closing"`
	IncludePhone    bool   `json:"include_phone" yaml:"include_phone"`
	IncludeComments bool   `json:"include_comments" yaml:"include_comments"`
}

// DefaultMessageTemplate is used when a store has not customized its message.
func DefaultMessageTemplate() MessageTemplate {
	return MessageTemplate{
		Greeting:        "¡Hola {storeName}! 👋",
		Introduction:    "Soy {customerName} y quiero hacer el siguiente pedido:",
		Closing:         "¡Muchas gracias!",
		IncludePhone:    true,
		IncludeComments: true,
	}
}

// IsZero reports whether no text field has been set.
func (t MessageTemplate) IsZero() bool {
	return t.Greeting == "" && t.Introduction == "" && t.Closing == ""
}

// Render substitutes the store and customer names into s. Missing tokens are
// a no-op.
func Render(s, storeName, customerName string) string {
	s = strings.ReplaceAll(s, PlaceholderStoreName, storeName)
	return strings.ReplaceAll(s, PlaceholderCustomerName, customerName)
}

// DeliveryOption is a store-configured delivery choice.
type DeliveryOption struct {
	Label string  `json:"label" yaml:"label"`
	Cost  float64 `json:"cost" yaml:"cost"`
}

// StoreConfig is the slice of merchant configuration the checkout needs.
// It is owned by the surrounding application and passed in read-only.
type StoreConfig struct {
	ID              string           `json:"id" yaml:"id"`
	Name            string           `json:"name" yaml:"name"`
	Slug            string           `json:"slug" yaml:"slug"`
	WhatsAppNumber  string           `json:"whatsapp_number" yaml:"whatsapp_number"`
	Currency        string           `json:"currency" yaml:"currency"`
	Template        MessageTemplate  `json:"message_template" yaml:"message_template"`
	PaymentMethods  []string         `json:"payment_methods" yaml:"payment_methods"`
	DeliveryMethods []DeliveryOption `json:"delivery_methods" yaml:"delivery_methods"`
	Products        []Product        `json:"products,omitempty" yaml:"products,omitempty"`
}

// MessageTemplate returns the store template, or the default one when the
// store never customized it.
func (s *StoreConfig) MessageTemplate() MessageTemplate {
	if s.Template.IsZero() {
		return DefaultMessageTemplate()
	}
	return s.Template
}

// DeliveryCostFor returns the configured cost for a delivery label, 0 if the
// label is unknown.
func (s *StoreConfig) DeliveryCostFor(label string) float64 {
	for _, opt := range s.DeliveryMethods {
		if opt.Label == label {
			return opt.Cost
		}
	}
	return 0
}

// HasPaymentMethod reports whether label is one of the store's options.
func (s *StoreConfig) HasPaymentMethod(label string) bool {
	for _, m := range s.PaymentMethods {
		if m == label {
			return true
		}
	}
	return false
}

// HasDeliveryMethod reports whether label is one of the store's options.
func (s *StoreConfig) HasDeliveryMethod(label string) bool {
	for _, opt := range s.DeliveryMethods {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// FindProduct looks up a catalog product by id.
func (s *StoreConfig) FindProduct(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
