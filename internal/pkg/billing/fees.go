package billing

import "github.com/shopspring/decimal"

// FeeBreakdown is the priced form of a Counts value.
type FeeBreakdown struct {
	StandardFee     decimal.Decimal `json:"standard_fee"`
	ManualReviewFee decimal.Decimal `json:"manual_review_fee"`
	SMSFee          decimal.Decimal `json:"sms_fee"`
	TotalFee        decimal.Decimal `json:"total_fee"`
	PricingVersion  string          `json:"pricing_version"`
	Currency        string          `json:"currency"`
}

// CalculateFees prices counts with table. Threads are billed at the in-hours
// or out-of-hours standard rate, flagged threads add the manual review rate on
// top, and each sent SMS adds the SMS rate.
func CalculateFees(c Counts, table PricingTable) FeeBreakdown {
	standard := table.StandardInHours.Mul(decimal.NewFromInt(int64(c.InHoursThreads))).
		Add(table.StandardOutOfHours.Mul(decimal.NewFromInt(int64(c.OutOfHoursThreads))))
	manual := table.ManualReview.Mul(decimal.NewFromInt(int64(c.ManualReviewThreads)))
	sms := table.SMS.Mul(decimal.NewFromInt(int64(c.SMSCount)))

	standard = standard.Round(2)
	manual = manual.Round(2)
	sms = sms.Round(2)

	return FeeBreakdown{
		StandardFee:     standard,
		ManualReviewFee: manual,
		SMSFee:          sms,
		TotalFee:        standard.Add(manual).Add(sms),
		PricingVersion:  table.Version,
		Currency:        table.Currency,
	}
}

// Validate checks that the breakdown is non-negative and internally consistent.
func (f FeeBreakdown) Validate() error {
	for _, v := range []decimal.Decimal{f.StandardFee, f.ManualReviewFee, f.SMSFee, f.TotalFee} {
		if v.IsNegative() {
			return ErrInvalidInput
		}
	}
	if !f.TotalFee.Equal(f.StandardFee.Add(f.ManualReviewFee).Add(f.SMSFee)) {
		return ErrInvalidInput
	}
	return nil
}
