package billing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Tariff", func() {
	Describe("DefaultTariff", func() {
		It("charges 0.12 per kWh", func() {
			Expect(DefaultTariff().Rate.String()).To(Equal("0.12"))
		})

		It("prints dollars", func() {
			Expect(DefaultTariff().Currency).To(Equal("$"))
		})
	})

	Describe("ParseTariff", func() {
		It("parses a decimal rate", func() {
			tariff, err := ParseTariff("0.25", "€")
			Expect(err).NotTo(HaveOccurred())
			Expect(tariff.Rate.Equal(decimal.RequireFromString("0.25"))).To(BeTrue())
			Expect(tariff.Currency).To(Equal("€"))
		})

		It("defaults the currency", func() {
			tariff, err := ParseTariff("0.12", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(tariff.Currency).To(Equal("$"))
		})

		It("rejects garbage", func() {
			_, err := ParseTariff("cheap", "$")
			Expect(err).To(HaveOccurred())
		})

		It("rejects negative rates", func() {
			_, err := ParseTariff("-0.12", "$")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Cost", func() {
		It("multiplies consumption by the rate", func() {
			Expect(DefaultTariff().Cost(150).StringFixed(2)).To(Equal("18.00"))
		})

		It("is zero for zero consumption", func() {
			Expect(DefaultTariff().Cost(0).IsZero()).To(BeTrue())
		})

		It("avoids binary floating point drift", func() {
			Expect(DefaultTariff().Cost(3).StringFixed(2)).To(Equal("0.36"))
		})
	})
})

var _ = Describe("Document", func() {
	var (
		issued time.Time
		doc    Document
	)

	BeforeEach(func() {
		issued = time.Date(2025, 1, 5, 9, 30, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		doc = NewDocument("0001200", "0001350", 150, DefaultTariff(), issued)
	})

	It("is due one calendar month after issue", func() {
		Expect(doc.DueDate).To(Equal(time.Date(2025, 2, 5, 9, 30, 0, 0, time.UTC)))
	})

	It("computes the amount due", func() {
		Expect(doc.AmountDue.StringFixed(2)).To(Equal("18.00"))
	})

	It("lists the details in print order", func() {
		Expect(doc.Lines()).To(Equal([]string{
			"Issue Date: January 5, 2025",
			"Due Date: February 5, 2025",
			"Previous Reading: 0001200",
			"Current Reading: 0001350",
			"Consumption Units: 150 kWh",
			"Rate per Unit: $0.12",
			"Amount Due: $18.00",
		}))
	})

	When("issued at the end of a long month", func() {
		BeforeEach(func() {
			issued = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
		})

		It("rolls the due date over like calendar arithmetic does", func() {
			Expect(FormatDate(doc.DueDate)).To(Equal("March 3, 2025"))
		})
	})
})
