package domain

// All amounts are integer minor units. The service fee is 10% of the
// subtotal, rounded half-up, so a subtotal of 235 yields a fee of 24.
const ServiceFeePercent = 10

func ServiceFeeFor(subtotal int64) int64 {
	return (subtotal*ServiceFeePercent + 50) / 100
}

type Totals struct {
	Subtotal   int64
	ServiceFee int64
	Total      int64
}

func TotalsFor(subtotal int64) Totals {
	fee := ServiceFeeFor(subtotal)
	return Totals{Subtotal: subtotal, ServiceFee: fee, Total: subtotal + fee}
}
