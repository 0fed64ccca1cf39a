package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

func tinyImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	return img
}

func tinyPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, tinyImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		extractor *Ollama
		record    *invoicetext.Record
		err       error
		img       []byte
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		img = tinyPNG()
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		record, err = extractor.ExtractInvoice(context.Background(), img, "image/png")
	})

	When("the model answers with JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(ConsistOf(base64.StdEncoding.EncodeToString(img)))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"InvoiceId": "OL-1", "Items": [{"Description": "Tea", "Amount": 4.5}]}`},
					Done:    true,
				}),
			))
		})

		It("returns the parsed record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.InvoiceId).To(HaveValue(Equal("OL-1")))
			Expect(record.Items).To(HaveLen(1))
			Expect(record.Items[0].Amount).To(HaveValue(Equal("4.5")))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Content: "I cannot read this image."},
			}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("no JSON object")))
		})
	})
})

var _ = Describe("toPNG", func() {
	It("returns PNG input unchanged", func() {
		data := tinyPNG()
		out, err := toPNG(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("re-encodes JPEG as PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, tinyImage(), nil)).To(Succeed())
		out, err := toPNG(buf.Bytes(), "IMAGE/JPEG ")
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("rejects unknown formats", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("decoding image")))
	})
})

var _ = Describe("isHEIC", func() {
	It("detects the MIME type", func() {
		Expect(isHEIC(nil, "image/heic")).To(BeTrue())
	})

	It("detects the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data, "application/octet-stream")).To(BeTrue())
	})

	It("rejects other data", func() {
		Expect(isHEIC([]byte("short"), "image/jpeg")).To(BeFalse())
	})
})
