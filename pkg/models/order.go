/*
Package models defines the shared data structures for the Tutaviendo storefront.

This package contains the Order handed to the message composer, the shopping
Cart it is built from, the merchant StoreConfig that supplies labels, currency
and message template, and the AnalyticsEvent records kept by the aggregator.
An Order is self-contained: once built it carries every label and amount the
composer needs, so no further lookups happen at composition time.
*/
package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrInvalidCustomerName = errors.New("customer name is required")
	ErrInvalidPhone        = errors.New("invalid phone format")
	ErrNoItems             = errors.New("order must contain at least one item")
	ErrInvalidProductID    = errors.New("product id is required")
	ErrInvalidProductName  = errors.New("product name is required")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidPrice        = errors.New("price must be positive or zero")
	ErrInvalidDeliveryCost = errors.New("delivery cost must be positive or zero")
	ErrInvalidPayment      = errors.New("payment method is required")
	ErrInvalidDelivery     = errors.New("delivery method is required")
)

// phoneRegex accepts an optional leading +, digits, spaces, dots, dashes and
// parentheses, with at least 7 digits overall (checked separately).
var phoneRegex = regexp.MustCompile(`^\+?[0-9 ().-]+$`)

// ValidationError reports a user-input problem bound to a form field.
// It is surfaced as an inline field error and never crosses the composer.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Product is the read-only catalog reference captured in a cart line.
type Product struct {
	ID    string  `json:"id" yaml:"id"`
	Name  string  `json:"name" yaml:"name"`
	Price float64 `json:"price" yaml:"price"`
}

// OrderItem is one line of an order. Quantity is always >= 1.
type OrderItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns price * quantity.
func (item OrderItem) Subtotal() float64 {
	return item.Product.Price * float64(item.Quantity)
}

// Validate checks that an order item is valid.
func (item *OrderItem) Validate() error {
	if strings.TrimSpace(item.Product.ID) == "" {
		return ErrInvalidProductID
	}
	if strings.TrimSpace(item.Product.Name) == "" {
		return ErrInvalidProductName
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.Product.Price < 0 || math.IsNaN(item.Product.Price) {
		return ErrInvalidPrice
	}
	return nil
}

// Order is the transient checkout payload built when the customer submits the
// cart form. It is consumed immediately by the composer and never persisted.
type Order struct {
	Items []OrderItem `json:"items"`

	// Customer
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Address       string `json:"address,omitempty"`
	Comments      string `json:"comments,omitempty"`

	// Payment and Delivery
	PaymentMethodLabel  string  `json:"payment_method"`
	DeliveryMethodLabel string  `json:"delivery_method"`
	DeliveryCost        float64 `json:"delivery_cost"`

	// Store context
	CurrencyCode string `json:"currency"`
	StoreName    string `json:"store_name"`
}

// Subtotal returns the sum of item subtotals, without delivery.
func (o *Order) Subtotal() float64 {
	var subtotal float64
	for _, item := range o.Items {
		subtotal += item.Subtotal()
	}
	return subtotal
}

// Total returns the subtotal plus delivery cost.
func (o *Order) Total() float64 {
	return o.Subtotal() + o.DeliveryCost
}

// Validate checks the customer-entered fields and the cart lines.
// Errors are *ValidationError values naming the offending field.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerName) == "" {
		return fieldError("customer_name", ErrInvalidCustomerName)
	}
	if phone := strings.TrimSpace(o.CustomerPhone); phone != "" && !ValidPhone(phone) {
		return fieldError("customer_phone", ErrInvalidPhone)
	}
	if len(o.Items) == 0 {
		return fieldError("items", ErrNoItems)
	}
	for i := range o.Items {
		if err := o.Items[i].Validate(); err != nil {
			return fieldError(fmt.Sprintf("items[%d]", i), err)
		}
	}
	if o.DeliveryCost < 0 || math.IsNaN(o.DeliveryCost) {
		return fieldError("delivery_cost", ErrInvalidDeliveryCost)
	}
	return nil
}

// IsValid returns true if the order is valid.
func (o *Order) IsValid() bool {
	return o.Validate() == nil
}

// ValidPhone reports whether s looks like a phone number: allowed
// punctuation only and 7 to 15 digits.
func ValidPhone(s string) bool {
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}
