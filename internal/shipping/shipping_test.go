package shipping

import (
	"testing"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/enums"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		city      string
		method    enums.ShippingMethod
		costPaisa int
	}{
		{name: "dhaka exact", city: "Dhaka", method: enums.ShippingMethodInsideDhaka, costPaisa: 7000},
		{name: "dhaka lowercase", city: "dhaka", method: enums.ShippingMethodInsideDhaka, costPaisa: 7000},
		{name: "dhaka padded", city: "  DHAKA  ", method: enums.ShippingMethodInsideDhaka, costPaisa: 7000},
		{name: "dhaka metro area", city: "Dhaka North", method: enums.ShippingMethodInsideDhaka, costPaisa: 7000},
		{name: "chittagong", city: "Chittagong", method: enums.ShippingMethodOutsideDhaka, costPaisa: 13000},
		{name: "sylhet", city: "Sylhet", method: enums.ShippingMethodOutsideDhaka, costPaisa: 13000},
		{name: "empty city", city: "", method: enums.ShippingMethodOutsideDhaka, costPaisa: 13000},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			quote := Classify(tc.city)
			if quote.Method != tc.method {
				t.Fatalf("Classify(%q) method = %s, want %s", tc.city, quote.Method, tc.method)
			}
			if quote.CostPaisa != tc.costPaisa {
				t.Fatalf("Classify(%q) cost = %d, want %d", tc.city, quote.CostPaisa, tc.costPaisa)
			}
		})
	}
}
