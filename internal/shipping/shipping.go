package shipping

import (
	"strings"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

// Delivery charges in paisa. Inside-Dhaka orders ship for 70 taka, everything
// else for 130 taka.
const (
	InsideDhakaCostPaisa  = 7000
	OutsideDhakaCostPaisa = 13000
)

// Quote is the shipping classification for a destination city.
type Quote struct {
	Method    enums.ShippingMethod
	CostPaisa int
}

// Classify derives the shipping method and cost from the destination city.
// Matching is case-insensitive and tolerant of surrounding whitespace, so
// "dhaka", "Dhaka " and "DHAKA" all classify as inside-Dhaka.
func Classify(city string) Quote {
	normalized := strings.ToLower(strings.TrimSpace(city))
	if strings.Contains(normalized, "dhaka") {
		return Quote{Method: enums.ShippingMethodInsideDhaka, CostPaisa: InsideDhakaCostPaisa}
	}
	return Quote{Method: enums.ShippingMethodOutsideDhaka, CostPaisa: OutsideDhakaCostPaisa}
}
