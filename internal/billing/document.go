package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Title heads every bill
	Title = "MeterEase - Electricity Bill"
	// Filename is the name the bill is downloaded as
	Filename = "MeterEase_Bill.pdf"
	// DefaultRate is the price of one kWh
	DefaultRate = "0.12"
	// DefaultCurrency is the symbol amounts are printed with
	DefaultCurrency = "$"

	dateLayout = "January 2, 2006"
)

// Tariff prices consumption
type Tariff struct {
	Rate     decimal.Decimal `json:"rate"`
	Currency string          `json:"currency"`
}

// DefaultTariff returns the flat 0.12/kWh tariff
func DefaultTariff() Tariff {
	return Tariff{
		Rate:     decimal.RequireFromString(DefaultRate),
		Currency: DefaultCurrency,
	}
}

// ParseTariff builds a tariff from a decimal rate string
func ParseTariff(rate, currency string) (Tariff, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return Tariff{}, fmt.Errorf("parsing rate %q: %w", rate, err)
	}
	if r.IsNegative() {
		return Tariff{}, fmt.Errorf("rate must not be negative: %s", rate)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Tariff{Rate: r, Currency: currency}, nil
}

// Cost returns the price of consumption kWh rounded to cents
func (t Tariff) Cost(consumption int64) decimal.Decimal {
	return t.Rate.Mul(decimal.NewFromInt(consumption)).Round(2)
}

// Format prints an amount with the currency symbol and two decimals
func (t Tariff) Format(amount decimal.Decimal) string {
	return t.Currency + amount.StringFixed(2)
}

// Document is a rendered-ready electricity bill
type Document struct {
	Title           string          `json:"title"`
	IssueDate       time.Time       `json:"issue_date"`
	DueDate         time.Time       `json:"due_date"`
	PreviousReading string          `json:"previous_reading"`
	CurrentReading  string          `json:"current_reading"`
	Consumption     int64           `json:"consumption"` // kWh
	Tariff          Tariff          `json:"tariff"`
	AmountDue       decimal.Decimal `json:"amount_due"`
}

// NewDocument builds a bill issued at issued and due one calendar month later
func NewDocument(previous, current string, consumption int64, tariff Tariff, issued time.Time) Document {
	return Document{
		Title:           Title,
		IssueDate:       issued,
		DueDate:         issued.AddDate(0, 1, 0),
		PreviousReading: previous,
		CurrentReading:  current,
		Consumption:     consumption,
		Tariff:          tariff,
		AmountDue:       tariff.Cost(consumption),
	}
}

// Lines returns the bill details in print order
func (d Document) Lines() []string {
	return []string{
		"Issue Date: " + FormatDate(d.IssueDate),
		"Due Date: " + FormatDate(d.DueDate),
		"Previous Reading: " + d.PreviousReading,
		"Current Reading: " + d.CurrentReading,
		fmt.Sprintf("Consumption Units: %d kWh", d.Consumption),
		"Rate per Unit: " + d.Tariff.Format(d.Tariff.Rate),
		"Amount Due: " + d.Tariff.Format(d.AmountDue),
	}
}

// FormatDate prints a long-form date, e.g. "January 5, 2025"
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
