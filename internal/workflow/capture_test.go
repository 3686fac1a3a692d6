package workflow

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/meterease/internal/capture"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("read error")
}

var _ = Describe("CaptureStage", func() {
	var stage *CaptureStage

	BeforeEach(func() {
		stage = NewCaptureStage(capture.NewLoader(0))
	})

	Describe("SetPreviousReading", func() {
		BeforeEach(func() {
			Expect(stage.SetPreviousReading("0001200")).To(Succeed())
		})

		DescribeTable("leaves the value unchanged for masked-out input",
			func(input string) {
				Expect(stage.SetPreviousReading(input)).To(MatchError(ErrInvalidInputFormat))
				Expect(stage.View().PreviousReading).To(Equal("0001200"))
			},
			Entry("eight digits", "00012001"),
			Entry("letters", "00a1200"),
			Entry("spaces", "0001 20"),
			Entry("negative", "-001200"),
		)

		It("accepts partial input", func() {
			Expect(stage.SetPreviousReading("00")).To(Succeed())
			Expect(stage.View().PreviousReading).To(Equal("00"))
		})
	})

	Describe("SetImage", func() {
		When("the file is readable", func() {
			It("stores a data URI", func() {
				Expect(stage.SetImage(context.Background(), meterSource())).To(Succeed())
				Expect(stage.View().MeterImage.MIMEType()).To(Equal("image/png"))
			})
		})

		When("the file cannot be read", func() {
			It("reports ErrReadFailure and keeps the prior image", func() {
				Expect(stage.SetImage(context.Background(), meterSource())).To(Succeed())
				before := stage.View().MeterImage

				err := stage.SetImage(context.Background(), capture.Source{Filename: "meter.png", Reader: brokenReader{}})
				Expect(err).To(MatchError(ErrReadFailure))
				Expect(stage.View().MeterImage).To(Equal(before))
			})
		})

		When("the file is not an image", func() {
			It("reports ErrReadFailure", func() {
				err := stage.SetImage(context.Background(), capture.Source{
					Filename:    "notes.txt",
					ContentType: "text/plain",
					Reader:      strings.NewReader("hello"),
				})
				Expect(err).To(MatchError(ErrReadFailure))
				Expect(stage.View().MeterImage.IsZero()).To(BeTrue())
			})
		})
	})

	Describe("ConfirmAndContinue", func() {
		var (
			handoff Handoff
			err     error
		)

		JustBeforeEach(func() {
			handoff, err = stage.ConfirmAndContinue()
		})

		When("no image is set", func() {
			DescribeTable("always reports ErrMissingImage",
				func(reading string) {
					Expect(stage.SetPreviousReading(reading)).To(Succeed())
					_, err := stage.ConfirmAndContinue()
					Expect(err).To(MatchError(ErrMissingImage))
				},
				Entry("valid reading", "0001200"),
				Entry("partial reading", "12"),
				Entry("empty reading", ""),
			)
		})

		When("the previous reading is incomplete", func() {
			BeforeEach(func() {
				Expect(stage.SetImage(context.Background(), meterSource())).To(Succeed())
				Expect(stage.SetPreviousReading("000120")).To(Succeed())
			})

			It("returns ErrInvalidPreviousReading", func() {
				Expect(err).To(MatchError(ErrInvalidPreviousReading))
			})

			It("returns no handoff", func() {
				Expect(handoff).To(Equal(Handoff{}))
			})
		})

		When("image and reading are valid", func() {
			BeforeEach(func() {
				Expect(stage.SetImage(context.Background(), meterSource())).To(Succeed())
				Expect(stage.SetPreviousReading("0001200")).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("hands off the reading", func() {
				Expect(handoff.PreviousReading).To(Equal("0001200"))
			})

			It("hands off the image", func() {
				Expect(handoff.MeterImage).To(Equal(stage.View().MeterImage))
			})

			It("reports the stage as ready", func() {
				Expect(stage.View().Ready).To(BeTrue())
			})
		})
	})
})
