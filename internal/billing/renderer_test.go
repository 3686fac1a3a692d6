package billing

import (
	"bytes"
	"image/png"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PDFRenderer", func() {
	var (
		renderer *PDFRenderer
		doc      Document
		data     []byte
		err      error
	)

	BeforeEach(func() {
		renderer = &PDFRenderer{}
		doc = NewDocument("0001200", "0001350", 150, DefaultTariff(), time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	})

	JustBeforeEach(func() {
		data, err = renderer.Render(doc)
	})

	It("should not return an error", func() {
		Expect(err).NotTo(HaveOccurred())
	})

	It("produces a PDF", func() {
		Expect(bytes.HasPrefix(data, []byte("%PDF-"))).To(BeTrue())
	})

	It("writes every bill line", func() {
		for _, line := range append([]string{Title, "Bill Details"}, doc.Lines()...) {
			Expect(string(data)).To(ContainSubstring(line))
		}
	})

	When("compression is enabled", func() {
		BeforeEach(func() {
			renderer = NewPDFRenderer()
		})

		It("keeps the text readable through the PDF engine", func() {
			text, textErr := Text(data)
			Expect(textErr).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("Consumption Units: 150 kWh"))
			Expect(text).To(ContainSubstring("Amount Due: $18.00"))
		})

		It("renders a PNG preview", func() {
			preview, previewErr := Preview(data)
			Expect(previewErr).NotTo(HaveOccurred())
			_, decodeErr := png.Decode(bytes.NewReader(preview))
			Expect(decodeErr).NotTo(HaveOccurred())
		})
	})
})

var _ = Describe("Preview", func() {
	When("the payload is not a PDF", func() {
		It("returns an error", func() {
			_, err := Preview([]byte("not a pdf"))
			Expect(err).To(HaveOccurred())
		})
	})
})
