package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/billed/internal/bill"
)

var _ = Describe("HTTP", func() {
	var (
		ctx    context.Context
		server *ghttp.Server
		client *HTTP
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		var err error
		client, err = NewHTTP(server.URL() + "/")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewHTTP", func() {
		It("rejects relative URLs", func() {
			_, err := NewHTTP("localhost/api")
			Expect(err).To(MatchError(ContainSubstring("must be absolute")))
		})
	})

	Describe("List", func() {
		When("the API answers", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/api/bills"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, []bill.Bill{
						{ID: "47qAXb6fIm2zOKkLzMro", Name: "encore", Date: "2001-01-01", FileURL: "/api/bills/47qAXb6fIm2zOKkLzMro/file"},
						{ID: "BeKy5Mo4jkmdfPGYpTxZ", Name: "test1", Date: "2004-04-04", FileURL: "https://test.storage.tld/1592770761.jpeg"},
					}),
				))
			})

			It("returns the bills with absolute file links", func() {
				bills, err := client.Bills().List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(bills).To(HaveLen(2))
				Expect(bills[0].FileURL).To(Equal(server.URL() + "/api/bills/47qAXb6fIm2zOKkLzMro/file"))
				Expect(bills[1].FileURL).To(Equal("https://test.storage.tld/1592770761.jpeg"))
			})
		})

		DescribeTable("rejections",
			func(status int, message string) {
				server.AppendHandlers(ghttp.RespondWith(status, `{"error":"nope"}`))
				_, err := client.Bills().List(ctx)
				Expect(err).To(MatchError(message))
				var storeErr *Error
				Expect(errors.As(err, &storeErr)).To(BeTrue())
				Expect(storeErr.Message).To(Equal("nope"))
			},
			Entry("not found", http.StatusNotFound, "Erreur 404"),
			Entry("server error", http.StatusInternalServerError, "Erreur 500"),
		)

		It("keeps plain text error bodies", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down\n"))
			_, err := client.Bills().List(ctx)
			var storeErr *Error
			Expect(errors.As(err, &storeErr)).To(BeTrue())
			Expect(storeErr.Message).To(Equal("upstream down"))
		})
	})

	Describe("Create", func() {
		var req CreateRequest

		BeforeEach(func() {
			form := NewFormData()
			Expect(form.SetFile("file", "example.jpg", strings.NewReader("dummy content"))).To(Succeed())
			form.Set("email", "test@example.com")
			req = CreateRequest{Data: form, Headers: Headers{NoContentType: true}}
		})

		When("NoContentType is set", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/bills"),
					func(w http.ResponseWriter, r *http.Request) {
						Expect(r.Header.Get("Content-Type")).To(HavePrefix("multipart/form-data; boundary="))
						Expect(r.ParseMultipartForm(1 << 20)).To(Succeed())
						Expect(r.FormValue("email")).To(Equal("test@example.com"))
						_, header, err := r.FormFile("file")
						Expect(err).NotTo(HaveOccurred())
						Expect(header.Filename).To(Equal("example.jpg"))
					},
					ghttp.RespondWithJSONEncoded(http.StatusCreated, CreateResult{FileURL: "https://cdn.test/mockFileUrl", Key: "mockKey"}),
				))
			})

			It("sends the multipart body and returns the key", func() {
				result, err := client.Bills().Create(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Key).To(Equal("mockKey"))
				Expect(result.FileURL).To(Equal("https://cdn.test/mockFileUrl"))
			})
		})

		When("NoContentType is not set", func() {
			BeforeEach(func() {
				req.Headers.NoContentType = false
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyContentType("application/json"),
					ghttp.RespondWith(http.StatusBadRequest, `{"error":"Error parsing form"}`),
				))
			})

			It("keeps the default JSON content type", func() {
				_, err := client.Bills().Create(ctx, req)
				Expect(err).To(MatchError("Erreur 400"))
			})
		})

		It("refuses a request without form data", func() {
			_, err := client.Bills().Create(ctx, CreateRequest{})
			Expect(err).To(MatchError(ContainSubstring("missing form data")))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		When("a selector names the draft", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPatch, "/api/bills/mockKey"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						var sent bill.Bill
						Expect(json.NewDecoder(r.Body).Decode(&sent)).To(Succeed())
						Expect(sent.Name).To(Equal("Paris to Algeria"))
						Expect(sent.Status).To(Equal(bill.StatusPending))
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, bill.Bill{ID: "mockKey", Name: "Paris to Algeria", Status: bill.StatusPending}),
				))
			})

			It("patches the draft named by the selector", func() {
				updated, err := client.Bills().Update(ctx, UpdateRequest{
					Selector: "mockKey",
					Data:     bill.Bill{Name: "Paris to Algeria", Status: bill.StatusPending},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.ID).To(Equal("mockKey"))
			})
		})

		When("the selector is empty", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/bills"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						var sent bill.Bill
						Expect(json.NewDecoder(r.Body).Decode(&sent)).To(Succeed())
						Expect(sent.Email).To(Equal("a@a"))
						Expect(sent.Name).To(Equal("Paris to Algeria"))
					},
					ghttp.RespondWithJSONEncoded(http.StatusCreated, bill.Bill{ID: "newKey", Email: "a@a", Name: "Paris to Algeria", Status: bill.StatusPending}),
				))
			})

			It("creates the bill without a receipt", func() {
				created, err := client.Bills().Update(ctx, UpdateRequest{
					Data: bill.Bill{Email: "a@a", Name: "Paris to Algeria", Status: bill.StatusPending},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(created.ID).To(Equal("newKey"))
				Expect(created.FileURL).To(BeEmpty())
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			var err error
			client, err = NewHTTP(server.URL(), WithBasicAuth("admin", "secret"))
			Expect(err).NotTo(HaveOccurred())
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyBasicAuth("admin", "secret"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, []bill.Bill{}),
			))
		})

		It("sends the credentials", func() {
			bills, err := client.Bills().List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(BeEmpty())
		})
	})
})
