/*
Package currency formats monetary amounts for order messages and dashboards.

Every amount shown to a customer or merchant goes through Format so the
symbol table lives in one place.
*/
package currency

import (
	"fmt"
	"math"
	"strings"
)

// DefaultSymbol is used for unknown or empty currency codes.
const DefaultSymbol = "$"

// symbols maps ISO 4217 codes to the display symbol used by the storefront.
var symbols = map[string]string{
	"USD": "$",
	"ARS": "$",
	"MXN": "$",
	"COP": "$",
	"CLP": "$",
	"UYU": "$U",
	"PEN": "S/",
	"BOB": "Bs",
	"PYG": "₲",
	"VES": "Bs.",
	"BRL": "R$",
	"GTQ": "Q",
	"CRC": "₡",
	"DOP": "RD$",
	"HNL": "L",
	"NIO": "C$",
	"PAB": "B/.",
	"EUR": "€",
	"GBP": "£",
	"CAD": "C$",
}

// Symbol returns the display symbol for code, DefaultSymbol when unknown.
func Symbol(code string) string {
	if s, ok := symbols[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return DefaultSymbol
}

// Format renders amount with the symbol for code prefixed and exactly two
// decimals, without thousands separators. NaN and infinities render as zero.
func Format(amount float64, code string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	// Avoid "-0.00" for tiny negative rounding residue.
	if math.Abs(amount) < 0.005 {
		amount = 0
	}
	return fmt.Sprintf("%s%.2f", Symbol(code), amount)
}
