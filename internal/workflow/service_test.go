package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/meterease/internal/billing"
)

var _ = Describe("Service", func() {
	var (
		handoffs *mockHandoffStore
		archive  *mockArchive
		renderer *mockRenderer
		notifier *mockNotifier
		idGen    *mockIDGenerator
		timeSrc  *mockTimeSource
		service  *Service
		ctx      context.Context
	)

	BeforeEach(func() {
		handoffs = newMockHandoffStore()
		archive = newMockArchive()
		renderer = &mockRenderer{}
		notifier = &mockNotifier{}
		idGen = &mockIDGenerator{id: "session-123"}
		timeSrc = &mockTimeSource{now: time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(handoffs, archive, renderer, notifier, Config{}, idGen, timeSrc)
		ctx = context.Background()
	})

	It("defaults to the 0.12 tariff", func() {
		Expect(service.Tariff().Rate.String()).To(Equal(billing.DefaultRate))
	})

	Describe("StartSession", func() {
		It("returns the generated ID", func() {
			Expect(service.StartSession()).To(Equal("session-123"))
		})

		It("opens an empty capture stage", func() {
			id := service.StartSession()
			view, err := service.Capture(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Ready).To(BeFalse())
		})
	})

	Describe("capture operations", func() {
		When("the session does not exist", func() {
			It("returns ErrSessionNotFound", func() {
				_, err := service.SetPreviousReading("nope", "1")
				Expect(err).To(MatchError(ErrSessionNotFound))
				_, err = service.SetImage(ctx, "nope", meterSource())
				Expect(err).To(MatchError(ErrSessionNotFound))
				_, err = service.Continue("nope")
				Expect(err).To(MatchError(ErrSessionNotFound))
			})
		})

		When("input is masked out", func() {
			It("returns the unchanged view with ErrInvalidInputFormat", func() {
				id := service.StartSession()
				_, err := service.SetPreviousReading(id, "000")
				Expect(err).NotTo(HaveOccurred())
				view, err := service.SetPreviousReading(id, "000x")
				Expect(err).To(MatchError(ErrInvalidInputFormat))
				Expect(view.PreviousReading).To(Equal("000"))
			})
		})
	})

	Describe("Continue", func() {
		var id string

		BeforeEach(func() {
			id = service.StartSession()
			_, err := service.SetImage(ctx, id, meterSource())
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SetPreviousReading(id, "0001200")
			Expect(err).NotTo(HaveOccurred())
		})

		When("the capture is valid", func() {
			It("stores the handoff", func() {
				_, err := service.Continue(id)
				Expect(err).NotTo(HaveOccurred())
				stored, found, _ := handoffs.Get(id)
				Expect(found).To(BeTrue())
				Expect(stored.PreviousReading).To(Equal("0001200"))
			})
		})

		When("saving the handoff fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("store error")
				handoffs.putErr = setupErr
			})

			It("returns the error", func() {
				_, err := service.Continue(id)
				Expect(err).To(MatchError(setupErr))
			})
		})

		When("continuing again after the calculation was opened", func() {
			It("restarts the calculation from the new values", func() {
				_, err := service.Continue(id)
				Expect(err).NotTo(HaveOccurred())
				_, err = service.SetCurrentReading(id, "0001350")
				Expect(err).NotTo(HaveOccurred())

				_, err = service.SetPreviousReading(id, "0001300")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Continue(id)
				Expect(err).NotTo(HaveOccurred())

				view, err := service.OpenCalculation(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(view.PreviousReading).To(Equal("0001300"))
				Expect(view.CurrentReading).To(BeEmpty())
			})
		})
	})

	Describe("OpenCalculation", func() {
		When("no handoff exists", func() {
			It("opens with empty values", func() {
				view, err := service.OpenCalculation("manual")
				Expect(err).NotTo(HaveOccurred())
				Expect(view.PreviousReading).To(BeEmpty())
				Expect(view.MeterImage.IsZero()).To(BeTrue())
				Expect(view.Status).To(Equal(StatusInitial))
			})
		})

		When("loading the handoff fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("store error")
				handoffs.getErr = setupErr
			})

			It("returns the error", func() {
				_, err := service.OpenCalculation("s1")
				Expect(err).To(MatchError(setupErr))
			})
		})

		When("the session id is empty", func() {
			It("returns ErrSessionNotFound", func() {
				_, err := service.OpenCalculation("")
				Expect(err).To(MatchError(ErrSessionNotFound))
			})
		})
	})

	Describe("end to end", func() {
		var (
			id   string
			bill *Bill
		)

		BeforeEach(func() {
			id = service.StartSession()
			_, err := service.SetImage(ctx, id, meterSource())
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SetPreviousReading(id, "0001200")
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Continue(id)
			Expect(err).NotTo(HaveOccurred())

			view, err := service.OpenCalculation(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.PreviousReading).To(Equal("0001200"))

			_, err = service.SetCurrentReading(id, "0001350")
			Expect(err).NotTo(HaveOccurred())
			view, err = service.Calculate(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(*view.Consumption).To(Equal(int64(150)))

			_, err = service.SetPhoneNumber(id, "5551234567")
			Expect(err).NotTo(HaveOccurred())
			bill, err = service.GenerateBill(ctx, id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("bills 18.00", func() {
			Expect(bill.Document.AmountDue.StringFixed(2)).To(Equal("18.00"))
			Expect(bill.Document.Lines()).To(ContainElements("Consumption Units: 150 kWh", "Amount Due: $18.00"))
		})

		It("archives the PDF under the session", func() {
			Expect(archive.files).To(HaveKeyWithValue("session-123_MeterEase_Bill.pdf", []byte("%PDF-mock")))
		})

		It("serves the PDF", func() {
			data, err := service.BillPDF(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("%PDF-mock")))
		})

		It("serves the archived PDF after the live stage is gone", func() {
			service.calculations.Delete(id)
			data, err := service.BillPDF(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("%PDF-mock")))
		})

		When("the meter is captured again", func() {
			BeforeEach(func() {
				_, err := service.SetPreviousReading(id, "0002000")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Continue(id)
				Expect(err).NotTo(HaveOccurred())

				view, err := service.OpenCalculation(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(view.PreviousReading).To(Equal("0002000"))
				Expect(view.Status).To(Equal(StatusInitial))
			})

			It("drops the archived bill of the old readings", func() {
				Expect(archive.files).NotTo(HaveKey("session-123_MeterEase_Bill.pdf"))
			})

			It("has no bill to serve", func() {
				_, err := service.BillPDF(id)
				Expect(err).To(MatchError(ErrBillNotGenerated))
				_, err = service.BillPreview(id)
				Expect(err).To(MatchError(ErrBillNotGenerated))
			})

			It("has no bill to serve once the live stage is gone", func() {
				service.calculations.Delete(id)
				_, err := service.BillPDF(id)
				Expect(err).To(MatchError(ErrBillNotGenerated))
			})
		})
	})

	Describe("Purge", func() {
		It("drops expired handoffs along with the live stages", func() {
			store := NewMemoryHandoffStore(time.Millisecond)
			now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
			store.cache.now = func() time.Time { return now }
			service = NewServiceWithDeps(store, archive, renderer, notifier, Config{}, idGen, timeSrc)

			for i := 0; i < 100; i++ {
				Expect(store.Put(fmt.Sprintf("s%d", i), Handoff{MeterImage: "data:image/png;base64,AA==", PreviousReading: "0001200"})).To(Succeed())
			}
			now = now.Add(time.Second)

			removed, err := service.Purge()
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(100))
			Expect(store.cache.items).To(BeEmpty())
		})

		When("the handoff store fails", func() {
			It("returns the error", func() {
				handoffs.purgeErr = errors.New("disk gone")
				_, err := service.Purge()
				Expect(err).To(MatchError(ContainSubstring("disk gone")))
			})
		})
	})

	Describe("GenerateBill", func() {
		When("archiving fails", func() {
			It("still returns the bill", func() {
				archive.saveErr = errors.New("disk full")
				Expect(handoffs.Put("manual", Handoff{PreviousReading: "0001200"})).To(Succeed())

				_, err := service.SetCurrentReading("manual", "0001350")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Calculate("manual")
				Expect(err).NotTo(HaveOccurred())
				_, err = service.SetPhoneNumber("manual", "5551234567")
				Expect(err).NotTo(HaveOccurred())

				bill, err := service.GenerateBill(ctx, "manual")
				Expect(err).NotTo(HaveOccurred())
				Expect(bill.PDF).NotTo(BeEmpty())
			})
		})

		When("the request is incomplete", func() {
			It("returns ErrIncompleteBillRequest", func() {
				_, err := service.GenerateBill(ctx, "manual")
				Expect(err).To(MatchError(ErrIncompleteBillRequest))
			})
		})
	})

	Describe("BillPDF", func() {
		When("no bill was generated", func() {
			It("returns ErrBillNotGenerated", func() {
				_, err := service.BillPDF("session-123")
				Expect(err).To(MatchError(ErrBillNotGenerated))
			})
		})
	})

	Describe("BillPreview", func() {
		When("the stored PDF is not renderable", func() {
			It("returns an error", func() {
				archive.files["s1_MeterEase_Bill.pdf"] = []byte("not a pdf")
				_, err := service.BillPreview("s1")
				Expect(err).To(HaveOccurred())
			})
		})
	})
})

var _ = Describe("Kind and Message", func() {
	DescribeTable("map errors to user notifications",
		func(err error, kind, message string) {
			Expect(Kind(err)).To(Equal(kind))
			Expect(Message(err)).To(Equal(message))
		},
		Entry("missing image", ErrMissingImage, "missing_image", "Please capture or upload an image first"),
		Entry("previous reading", ErrInvalidPreviousReading, "invalid_previous_reading", "Please enter a valid 7-digit previous reading"),
		Entry("current reading", ErrInvalidCurrentReading, "invalid_current_reading", "Please enter a valid 7-digit current reading"),
		Entry("negative", ErrNegativeConsumption, "negative_consumption", "Current reading cannot be less than previous reading"),
		Entry("incomplete", ErrIncompleteBillRequest, "incomplete_bill_request", "Please calculate consumption and enter a phone number first"),
		Entry("wrapped read failure", errors.Join(errors.New("x"), ErrReadFailure), "read_failure", "Could not read the selected image"),
		Entry("unknown", errors.New("boom"), "internal", "Something went wrong. Please try again"),
	)

	It("classifies validation errors", func() {
		Expect(IsValidation(ErrNegativeConsumption)).To(BeTrue())
		Expect(IsValidation(ErrSessionNotFound)).To(BeFalse())
		Expect(IsValidation(errors.New("boom"))).To(BeFalse())
	})
})
