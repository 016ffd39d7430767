package utils

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_IndianCurrencyGrouping(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("groups are 3 digits then 2s and the value survives", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			if (amount < 0) != strings.HasPrefix(formatted, "-") {
				return false
			}
			body := strings.TrimPrefix(formatted, "-")
			if !strings.HasPrefix(body, "₹") {
				return false
			}
			body = strings.TrimPrefix(body, "₹")

			whole, frac, ok := strings.Cut(body, ".")
			if !ok || len(frac) != 2 {
				return false
			}
			groups := strings.Split(whole, ",")
			last := len(groups) - 1
			if len(groups) > 1 && len(groups[last]) != 3 {
				return false
			}
			for i, g := range groups[:last] {
				if i == 0 && (len(g) < 1 || len(g) > 2) {
					return false
				}
				if i > 0 && len(g) != 2 {
					return false
				}
			}

			parsed, err := strconv.ParseFloat(strings.ReplaceAll(whole, ",", "")+"."+frac, 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed-math.Abs(amount)) <= 0.01
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.TestingRun(t)
}
