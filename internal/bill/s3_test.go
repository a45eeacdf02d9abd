package bill

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("S3Storage", func() {
	var (
		ctx     context.Context
		s3      *ghttp.Server
		storage *S3Storage
	)

	BeforeEach(func() {
		ctx = context.Background()
		s3 = ghttp.NewServer()
		var err error
		storage, err = NewS3Storage(S3Options{
			Endpoint:  s3.Addr(),
			AccessKey: "minio",
			SecretKey: "minio123",
			Bucket:    "receipts",
			Region:    "us-east-1",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		s3.Close()
	})

	Describe("Save", func() {
		BeforeEach(func() {
			s3.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPut, "/receipts/abc_ticket.jpg"),
				ghttp.VerifyHeaderKV("Content-Type", "image/jpeg"),
				ghttp.VerifyBody([]byte("receipt bytes")),
				ghttp.RespondWith(http.StatusOK, nil, http.Header{"ETag": {`"d41d8cd98f00b204e9800998ecf8427e"`}}),
			))
		})

		It("puts the object into the bucket", func() {
			key, err := storage.Save(ctx, "abc_ticket.jpg", []byte("receipt bytes"), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("abc_ticket.jpg"))
			Expect(s3.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			s3.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodDelete, "/receipts/abc_ticket.jpg"),
				ghttp.RespondWith(http.StatusNoContent, nil),
			))
		})

		It("removes the object", func() {
			Expect(storage.Delete(ctx, "abc_ticket.jpg")).To(Succeed())
			Expect(s3.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("EnsureBucket", func() {
		When("the bucket exists", func() {
			BeforeEach(func() {
				s3.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodHead, MatchRegexp(`^/receipts/?$`)),
					ghttp.RespondWith(http.StatusOK, nil),
				))
			})

			It("does not try to create it", func() {
				Expect(storage.EnsureBucket(ctx)).To(Succeed())
				Expect(s3.ReceivedRequests()).To(HaveLen(1))
			})
		})
	})

	Describe("PresignGet", func() {
		It("signs a download link without calling the server", func() {
			link, err := storage.PresignGet(ctx, "abc_ticket.jpg", 10*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(link).To(ContainSubstring("/receipts/abc_ticket.jpg"))
			Expect(link).To(ContainSubstring("X-Amz-Signature="))
			Expect(s3.ReceivedRequests()).To(BeEmpty())
		})
	})
})
