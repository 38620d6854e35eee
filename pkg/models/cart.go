package models

import "strings"

// Cart holds the customer's pending lines for a single store. A line with a
// quantity of zero or less is removed, never stored.
type Cart struct {
	items []OrderItem
}

// NewCart creates an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// Add increases the quantity of product by qty, appending a new line when the
// product is not yet in the cart. A non-positive qty is ignored.
func (c *Cart) Add(product Product, qty int) {
	if qty <= 0 {
		return
	}
	for i := range c.items {
		if c.items[i].Product.ID == product.ID {
			c.items[i].Quantity += qty
			return
		}
	}
	c.items = append(c.items, OrderItem{Product: product, Quantity: qty})
}

// SetQuantity sets the quantity of a line. qty <= 0 removes the line.
// Returns false when the product is not in the cart.
func (c *Cart) SetQuantity(productID string, qty int) bool {
	for i := range c.items {
		if c.items[i].Product.ID != productID {
			continue
		}
		if qty <= 0 {
			c.items = append(c.items[:i], c.items[i+1:]...)
		} else {
			c.items[i].Quantity = qty
		}
		return true
	}
	return false
}

// Remove drops a line from the cart.
func (c *Cart) Remove(productID string) bool {
	return c.SetQuantity(productID, 0)
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []OrderItem {
	out := make([]OrderItem, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns the total number of units in the cart.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Subtotal returns the sum of line subtotals.
func (c *Cart) Subtotal() float64 {
	var total float64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

// CheckoutForm is what the customer types in the cart modal.
type CheckoutForm struct {
	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	Address        string `json:"address,omitempty"`
	Comments       string `json:"comments,omitempty"`
	PaymentMethod  string `json:"payment_method"`
	DeliveryMethod string `json:"delivery_method"`
}

// Checkout builds an Order from the cart and the submitted form. The delivery
// cost is resolved from the store configuration. The returned order is
// validated; the cart is left untouched.
func (c *Cart) Checkout(form CheckoutForm, store *StoreConfig) (Order, error) {
	order := Order{
		Items:               c.Items(),
		CustomerName:        strings.TrimSpace(form.CustomerName),
		CustomerPhone:       strings.TrimSpace(form.CustomerPhone),
		Address:             strings.TrimSpace(form.Address),
		Comments:            strings.TrimSpace(form.Comments),
		PaymentMethodLabel:  form.PaymentMethod,
		DeliveryMethodLabel: form.DeliveryMethod,
		DeliveryCost:        store.DeliveryCostFor(form.DeliveryMethod),
		CurrencyCode:        store.Currency,
		StoreName:           store.Name,
	}
	if len(store.PaymentMethods) > 0 && !store.HasPaymentMethod(form.PaymentMethod) {
		return order, fieldError("payment_method", ErrInvalidPayment)
	}
	if len(store.DeliveryMethods) > 0 && !store.HasDeliveryMethod(form.DeliveryMethod) {
		return order, fieldError("delivery_method", ErrInvalidDelivery)
	}
	if err := order.Validate(); err != nil {
		return order, err
	}
	return order, nil
}
