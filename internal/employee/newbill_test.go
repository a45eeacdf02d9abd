package employee

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/router"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
)

var _ = Describe("NewBill", func() {
	var (
		ctx      context.Context
		sess     *session.MemoryStore
		doc      *mockDocument
		nav      *navigations
		resource *mockBills
		opts     Options
		selected FileSelection
	)

	BeforeEach(func() {
		ctx = context.Background()
		sess = session.NewMemoryStore()
		Expect(session.SetUser(sess, session.User{Type: session.Employee, Email: "test@example.com"})).To(Succeed())
		doc = &mockDocument{}
		nav = &navigations{}
		resource = &mockBills{createFunc: func(context.Context, store.CreateRequest) (*store.CreateResult, error) {
			return &store.CreateResult{FileURL: "mockFileUrl", Key: "mockKey"}, nil
		}}
		opts = Options{Document: doc, Navigate: nav.navigate, Store: &mockClient{bills: resource}, Session: sess}
		selected = FileSelection{
			Path:    `C:\fakepath\example.jpg`,
			Name:    "example.jpg",
			Content: strings.NewReader("dummy content"),
		}
	})

	It("starts with an empty draft", func() {
		n := NewNewBill(opts)
		Expect(n.Draft()).To(Equal(Draft{}))
		Expect(n.IsFormImgValid).To(BeFalse())
	})

	Describe("HandleChangeFile", func() {
		It("uploads the receipt and records the draft", func() {
			n := NewNewBill(opts)
			Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())

			calls := resource.createCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Headers).To(Equal(store.Headers{NoContentType: true}))
			email, ok := calls[0].Data.Get("email")
			Expect(ok).To(BeTrue())
			Expect(email).To(Equal("test@example.com"))
			filename, content, ok := calls[0].Data.File("file")
			Expect(ok).To(BeTrue())
			Expect(filename).To(Equal("example.jpg"))
			Expect(string(content)).To(Equal("dummy content"))

			Expect(n.BillID).To(Equal("mockKey"))
			Expect(n.FileURL).To(Equal("mockFileUrl"))
			Expect(n.FileName).To(Equal("example.jpg"))
			Expect(n.IsFormImgValid).To(BeTrue())
			Expect(doc.alerts).To(BeEmpty())
		})

		DescribeTable("accepts image extensions in any case",
			func(path string) {
				n := NewNewBill(opts)
				Expect(n.HandleChangeFile(ctx, FileSelection{Path: path, Content: strings.NewReader("x")})).To(Succeed())
				Expect(resource.createCalls()).To(HaveLen(1))
				Expect(n.IsFormImgValid).To(BeTrue())
			},
			Entry("jpg", `C:\fakepath\example.jpg`),
			Entry("jpeg", `C:\fakepath\example.jpeg`),
			Entry("png", "/home/me/example.png"),
			Entry("upper case", `C:\fakepath\EXAMPLE.JPG`),
		)

		It("takes the file name from the path when none is given", func() {
			n := NewNewBill(opts)
			Expect(n.HandleChangeFile(ctx, FileSelection{Path: `C:\fakepath\scan.png`})).To(Succeed())
			filename, _, _ := resource.createCalls()[0].Data.File("file")
			Expect(filename).To(Equal("scan.png"))
			Expect(n.FileName).To(Equal("scan.png"))
		})

		It("alerts on an invalid extension without uploading", func() {
			n := NewNewBill(opts)
			selected.Path = `C:\fakepath\example.txt`
			selected.Name = "example.txt"

			err := n.HandleChangeFile(ctx, selected)

			Expect(errors.Is(err, ErrInvalidExtension)).To(BeTrue())
			Expect(doc.alerts).To(Equal([]string{"Veuillez sélectionner un fichier avec une extension .jpg, .jpeg ou .png"}))
			Expect(resource.createCalls()).To(BeEmpty())
			Expect(n.IsFormImgValid).To(BeFalse())
		})

		It("invalidates a previously valid selection", func() {
			n := NewNewBill(opts)
			Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())
			Expect(n.HandleChangeFile(ctx, FileSelection{Path: "notes.pdf"})).To(MatchError(ErrInvalidExtension))
			Expect(n.IsFormImgValid).To(BeFalse())
		})

		It("logs an upload failure and keeps no file info", func() {
			resource.createFunc = func(context.Context, store.CreateRequest) (*store.CreateResult, error) {
				return nil, &store.Error{Status: 500}
			}
			n := NewNewBill(opts)
			n.Restore(Draft{BillID: "stale", FileURL: "stale", FileName: "stale.jpg"})

			Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())
			Expect(n.BillID).To(BeEmpty())
			Expect(n.FileURL).To(BeEmpty())
			Expect(n.FileName).To(BeEmpty())
			Expect(doc.alerts).To(BeEmpty())
		})

		It("skips the upload without a store", func() {
			opts.Store = nil
			n := NewNewBill(opts)
			Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())
			Expect(n.IsFormImgValid).To(BeTrue())
			Expect(n.BillID).To(BeEmpty())
		})
	})

	Describe("HandleSubmit", func() {
		var form BillForm

		BeforeEach(func() {
			form = BillForm{
				Type:       "Transports",
				Name:       "Paris to Algeria",
				Date:       "2022-11-05",
				Amount:     "450",
				VAT:        "75",
				Pct:        "25",
				Commentary: "Test Commentary",
			}
		})

		It("updates the draft and navigates to the bill list", func() {
			n := NewNewBill(opts)
			Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())

			sub := n.HandleSubmit(ctx, form)

			Expect(nav.paths).To(Equal([]string{router.PathBills}))
			Expect(nav.paths[0]).To(ContainSubstring("#employee/bills"))

			updated, err := sub.Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.ID).To(Equal("mockKey"))

			calls := resource.updateCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Selector).To(Equal("mockKey"))
			Expect(calls[0].Data).To(Equal(bill.Bill{
				Email:      "test@example.com",
				Type:       "Transports",
				Name:       "Paris to Algeria",
				Amount:     450,
				Date:       "2022-11-05",
				VAT:        "75",
				Pct:        25,
				Commentary: "Test Commentary",
				FileURL:    "mockFileUrl",
				FileName:   "example.jpg",
				Status:     bill.StatusPending,
			}))
		})

		It("defaults pct to 20 and invalid numbers to 0", func() {
			form.Pct = ""
			form.Amount = "beaucoup"
			n := NewNewBill(opts)
			_, err := n.HandleSubmit(ctx, form).Wait()
			Expect(err).NotTo(HaveOccurred())
			sent := resource.updateCalls()[0].Data
			Expect(sent.Pct).To(Equal(20.0))
			Expect(sent.Amount).To(BeZero())
		})

		It("accepts decimal amounts", func() {
			form.Amount = "12.50"
			n := NewNewBill(opts)
			_, err := n.HandleSubmit(ctx, form).Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(resource.updateCalls()[0].Data.Amount).To(Equal(12.5))
		})

		DescribeTable("navigates even when the update fails",
			func(message string) {
				resource.updateFunc = func(context.Context, store.UpdateRequest) (*bill.Bill, error) {
					return nil, errors.New(message)
				}
				n := NewNewBill(opts)
				n.IsFormImgValid = true

				sub := n.HandleSubmit(ctx, form)

				Expect(nav.paths).To(Equal([]string{router.PathBills}))
				_, err := sub.Wait()
				Expect(err).To(MatchError(ContainSubstring(message)))
				Expect(doc.alerts).To(BeEmpty())
			},
			Entry("not found", "404"),
			Entry("server error", "500"),
		)

		It("does not wait for the update before navigating", func() {
			release := make(chan struct{})
			resource.updateFunc = func(ctx context.Context, req store.UpdateRequest) (*bill.Bill, error) {
				<-release
				return &req.Data, nil
			}
			n := NewNewBill(opts)

			sub := n.HandleSubmit(ctx, form)

			Expect(nav.paths).To(HaveLen(1))
			Consistently(sub.Done()).ShouldNot(BeClosed())
			close(release)
			Eventually(sub.Done()).Should(BeClosed())
		})

		It("completes immediately without a store", func() {
			opts.Store = nil
			n := NewNewBill(opts)
			sub := n.HandleSubmit(ctx, form)
			Expect(sub.Done()).To(BeClosed())
			updated, err := sub.Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(updated).To(BeNil())
			Expect(nav.paths).To(Equal([]string{router.PathBills}))
		})

		It("restores a draft from an earlier request", func() {
			n := NewNewBill(opts)
			n.Restore(Draft{BillID: "mockKey", FileURL: "mockFileUrl", FileName: "example.jpg", IsFormImgValid: true})
			Expect(n.Draft().BillID).To(Equal("mockKey"))

			_, err := n.HandleSubmit(ctx, form).Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(resource.updateCalls()[0].Selector).To(Equal("mockKey"))
			Expect(resource.updateCalls()[0].Data.FileName).To(Equal("example.jpg"))
		})

		Context("when a receipt is required", func() {
			BeforeEach(func() {
				resource.createFunc = func(context.Context, store.CreateRequest) (*store.CreateResult, error) {
					return nil, errors.New("upload failed")
				}
			})

			It("refuses to submit without an uploaded receipt", func() {
				n := NewNewBill(opts, WithUploadPolicy(UploadRequired))
				Expect(n.HandleChangeFile(ctx, selected)).To(Succeed())

				sub := n.HandleSubmit(ctx, form)

				_, err := sub.Wait()
				Expect(err).To(MatchError(ErrReceiptRequired))
				Expect(doc.alerts).To(Equal([]string{"Veuillez ajouter un justificatif avant d'envoyer la note de frais"}))
				Expect(nav.paths).To(BeEmpty())
				Expect(resource.updateCalls()).To(BeEmpty())
			})

			It("submits once the receipt is uploaded", func() {
				n := NewNewBill(opts, WithUploadPolicy(UploadRequired))
				n.Restore(Draft{BillID: "mockKey", FileURL: "mockFileUrl", FileName: "example.jpg", IsFormImgValid: true})
				_, err := n.HandleSubmit(ctx, form).Wait()
				Expect(err).NotTo(HaveOccurred())
				Expect(nav.paths).To(Equal([]string{router.PathBills}))
			})
		})

		It("submits without receipt by default", func() {
			n := NewNewBill(opts)
			_, err := n.HandleSubmit(ctx, form).Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(resource.updateCalls()[0].Data.FileURL).To(BeEmpty())
			Expect(resource.updateCalls()[0].Selector).To(BeEmpty())
			Expect(resource.updateCalls()[0].Data.Email).NotTo(BeEmpty())
		})
	})
})
