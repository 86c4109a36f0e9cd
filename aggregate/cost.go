package aggregate

import (
	"sort"

	"github.com/fraclad/s3-insight/types"
)

const bytesPerGB = 1024 * 1024 * 1024

// monthlyPricePerGB is the approximate us-east-1 storage price per GB-month.
var monthlyPricePerGB = map[string]float64{
	"STANDARD":            0.023,
	"INTELLIGENT_TIERING": 0.023,
	"REDUCED_REDUNDANCY":  0.024,
	"STANDARD_IA":         0.0125,
	"ONEZONE_IA":          0.01,
	"GLACIER_IR":          0.004,
	"GLACIER":             0.004,
	"DEEP_ARCHIVE":        0.00099,
}

// PricePerGB returns the monthly price of one GB in the storage class.
// Unknown classes are priced as STANDARD.
func PricePerGB(storageClass string) float64 {
	if price, ok := monthlyPricePerGB[storageClass]; ok {
		return price
	}
	return monthlyPricePerGB[types.DefaultStorageClass]
}

// EstimateMonthlyCost prices a storage class breakdown. Classes are summed
// in name order so the result is the same on every call.
func EstimateMonthlyCost(classes map[string]types.Tally) float64 {
	names := make([]string, 0, len(classes))
	for class := range classes {
		names = append(names, class)
	}
	sort.Strings(names)

	total := 0.0
	for _, class := range names {
		total += float64(classes[class].Bytes) / bytesPerGB * PricePerGB(class)
	}
	return total
}
