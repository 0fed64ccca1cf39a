package invoice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-review/internal/erp"
	"github.com/zombor/invoice-review/internal/invoicetext"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		submitter   *mockSubmitter
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		submitter = newMockSubmitter()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, extractor, storage, submitter, &mockIDGenerator{ids: []string{"inv-1", "sub-1"}}, &mockTimeSource{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		handler := server.Handler()
		for i := 0; i < 4; i++ {
			ghttpServer.AppendHandlers(handler.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path, contentType string, body io.Reader) (*http.Response, string) {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, string(data)
	}

	pending := func() *Invoice {
		record := &invoicetext.Record{InvoiceId: invoicetext.String("INV-001"), Items: []invoicetext.LineItem{}}
		return &Invoice{
			ID:          "inv-1",
			Filename:    "inv-1_invoice.pdf",
			ContentType: "application/pdf",
			Extracted:   record,
			Text:        invoicetext.Encode(record),
			Status:      StatusPending,
		}
	}

	Describe("GET /healthz", func() {
		It("returns ok", func() {
			resp, body := do("GET", "/healthz", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal("ok"))
		})
	})

	Describe("OPTIONS preflight", func() {
		It("answers with CORS headers", func() {
			resp, _ := do("OPTIONS", "/api/invoices", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("POST /api/invoices", func() {
		upload := func(filename, partContentType string, content []byte) (*http.Response, string) {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
			if partContentType != "" {
				header.Set("Content-Type", partContentType)
			}
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(content)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return do("POST", "/api/invoices", writer.FormDataContentType(), body)
		}

		When("the upload succeeds", func() {
			It("returns the created invoice with its review text", func() {
				resp, body := upload("invoice.pdf", "application/pdf", []byte("%PDF"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var inv Invoice
				Expect(json.Unmarshal([]byte(body), &inv)).To(Succeed())
				Expect(inv.ID).To(Equal("inv-1"))
				Expect(inv.Text).To(ContainSubstring("Invoice ID      : INV-001"))
				Expect(inv.Extracted.InvoiceTotal).To(HaveValue(Equal("250.00")))
			})
		})

		When("the part has a generic content type", func() {
			It("derives the type from the filename", func() {
				resp, _ := upload("scan.png", "application/octet-stream", []byte("png"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(extractor.contentType).To(Equal("image/png"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.err = errors.New("azure down")
			})

			It("returns the error", func() {
				resp, body := upload("invoice.pdf", "application/pdf", []byte("%PDF"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(body).To(ContainSubstring("azure down"))
			})
		})

		When("no file is sent", func() {
			It("returns Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "x")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				resp, msg := do("POST", "/api/invoices", writer.FormDataContentType(), body)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(msg).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not multipart", func() {
			It("returns Bad Request", func() {
				resp, _ := do("POST", "/api/invoices", "application/json", strings.NewReader("{}"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /api/invoices", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = pending()
		})

		It("returns all invoices", func() {
			resp, body := do("GET", "/api/invoices", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var invoices []*Invoice
			Expect(json.Unmarshal([]byte(body), &invoices)).To(Succeed())
			Expect(invoices).To(HaveLen(1))
		})

		When("listing fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("returns Internal Server Error", func() {
				resp, _ := do("GET", "/api/invoices", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/invoices/{id}", func() {
		It("returns Not Found for unknown ids", func() {
			resp, body := do("GET", "/api/invoices/nope", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body).To(MatchJSON(`{"error":"Invoice not found"}`))
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.getErr = errors.New("bolt: database not open")
			})

			It("returns Internal Server Error without claiming the invoice is missing", func() {
				resp, body := do("GET", "/api/invoices/inv-1", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(body).To(MatchJSON(`{"error":"Internal server error"}`))
			})

			It("reports the same for the text and delete routes", func() {
				resp, body := do("GET", "/api/invoices/inv-1/text", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(body).NotTo(ContainSubstring("not found"))

				resp, body = do("DELETE", "/api/invoices/inv-1", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(body).NotTo(ContainSubstring("not found"))
			})
		})
	})

	Describe("GET /api/invoices/{id}/file", func() {
		It("serves the original document", func() {
			db.invoices["inv-1"] = pending()
			storage.files["inv-1_invoice.pdf"] = []byte("%PDF-1.4")
			resp, body := do("GET", "/api/invoices/inv-1/file", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(body).To(Equal("%PDF-1.4"))
		})

		It("returns Not Found when the document is missing", func() {
			db.invoices["inv-1"] = pending()
			resp, body := do("GET", "/api/invoices/inv-1/file", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(body).To(MatchJSON(`{"error":"File not found"}`))
		})

		It("returns Internal Server Error when storage fails", func() {
			db.invoices["inv-1"] = pending()
			storage.getErr = errors.New("permission denied")
			resp, body := do("GET", "/api/invoices/inv-1/file", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body).To(MatchJSON(`{"error":"Internal server error"}`))
		})
	})

	Describe("review text", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = pending()
		})

		It("serves the text as plain text", func() {
			resp, body := do("GET", "/api/invoices/inv-1/text", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(body).To(Equal(pending().Text))
		})

		It("stores an edited text and previews its record", func() {
			edited := strings.Replace(pending().Text, "INV-001", "INV-002", 1)
			resp, _ := do("PUT", "/api/invoices/inv-1/text", "text/plain", strings.NewReader(edited))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, body := do("GET", "/api/invoices/inv-1/record", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record invoicetext.Record
			Expect(json.Unmarshal([]byte(body), &record)).To(Succeed())
			Expect(record.InvoiceId).To(HaveValue(Equal("INV-002")))
		})

		It("rejects text that is not UTF-8", func() {
			resp, body := do("PUT", "/api/invoices/inv-1/text", "text/plain", bytes.NewReader([]byte{0xff, 0xfe}))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(ContainSubstring("failed to parse invoice data"))
		})

		It("rejects edits after submission", func() {
			db.invoices["inv-1"].Status = StatusSubmitted
			resp, _ := do("PUT", "/api/invoices/inv-1/text", "text/plain", strings.NewReader("x"))
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("POST /api/invoices/{id}/submit", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = pending()
		})

		It("submits and returns the submission", func() {
			resp, body := do("POST", "/api/invoices/inv-1/submit", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var sub Submission
			Expect(json.Unmarshal([]byte(body), &sub)).To(Succeed())
			Expect(sub.InvoiceID).To(Equal("inv-1"))
			Expect(sub.Record.InvoiceId).To(HaveValue(Equal("INV-001")))
		})

		When("the ERP rejects the record", func() {
			BeforeEach(func() {
				submitter.err = fmt.Errorf("%w (status 422)", erp.ErrRejected)
			})

			It("returns Bad Gateway", func() {
				resp, body := do("POST", "/api/invoices/inv-1/submit", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(body).To(ContainSubstring("failed to upload to ERP system"))
			})
		})

		When("submitting twice", func() {
			It("returns Conflict", func() {
				resp, _ := do("POST", "/api/invoices/inv-1/submit", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp, _ = do("POST", "/api/invoices/inv-1/submit", "", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})
	})

	Describe("DELETE /api/invoices/{id}", func() {
		It("returns No Content", func() {
			db.invoices["inv-1"] = pending()
			resp, _ := do("DELETE", "/api/invoices/inv-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.invoices).To(BeEmpty())
		})

		It("returns Not Found for unknown ids", func() {
			resp, _ := do("DELETE", "/api/invoices/nope", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("submissions", func() {
		BeforeEach(func() {
			db.submissions["sub-1"] = &Submission{ID: "sub-1", InvoiceID: "inv-1", StatusCode: 200}
		})

		It("lists them", func() {
			resp, body := do("GET", "/api/submissions", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(`"id":"sub-1"`))
		})

		It("gets one", func() {
			resp, _ := do("GET", "/api/submissions/sub-1", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns Not Found for unknown ids", func() {
			resp, _ := do("GET", "/api/submissions/nope", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/convert/text", func() {
		It("renders a JSON record", func() {
			resp, body := do("POST", "/api/convert/text", "application/json", strings.NewReader(`{"InvoiceId":"INV-001","Items":[]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(invoicetext.Encode(&invoicetext.Record{InvoiceId: invoicetext.String("INV-001")})))
		})

		It("shows the display string for a null body", func() {
			resp, body := do("POST", "/api/convert/text", "application/json", strings.NewReader("null"))
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(body).To(Equal(invoicetext.EncodeFailureText))
		})

		It("shows the display string for unusable input", func() {
			resp, body := do("POST", "/api/convert/text", "application/json", strings.NewReader(`"just a string"`))
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(body).To(Equal(invoicetext.EncodeFailureText))
		})
	})

	Describe("POST /api/convert/record", func() {
		It("decodes review text", func() {
			resp, body := do("POST", "/api/convert/record", "text/plain", strings.NewReader("Invoice Total : 10.00\nLINE ITEMS\nItem 1:\nAmount : 10.00\n"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{
				"InvoiceId": null, "InvoiceDate": null, "DueDate": null, "VendorName": null,
				"CustomerName": null, "CustomerAddress": null, "InvoiceTotal": "10.00",
				"Items": [{"Description": null, "Quantity": null, "UnitPrice": null, "Amount": "10.00"}]
			}`))
		})

		It("fails for input that is not text", func() {
			resp, _ := do("POST", "/api/convert/record", "text/plain", bytes.NewReader([]byte{0xc3, 0x28}))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "reviewer", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp, _ := do("GET", "/api/invoices", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Invoice Review"))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequestWithContext(context.Background(), "GET", ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("reviewer:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("reviewer", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("leaves the health check open", func() {
			resp, _ := do("GET", "/healthz", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
