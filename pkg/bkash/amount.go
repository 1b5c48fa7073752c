package bkash

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatTaka renders an integer paisa amount as the two-decimal taka string
// the gateway expects, e.g. 7000 -> "70.00".
func FormatTaka(paisa int) string {
	return decimal.New(int64(paisa), -2).StringFixed(2)
}

// ParseTaka converts a gateway taka string back into integer paisa.
func ParseTaka(amount string) (int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	paisa := d.Shift(2)
	if !paisa.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-paisa precision", amount)
	}
	return int(paisa.IntPart()), nil
}
