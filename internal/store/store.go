// Package store is the client side of the remote bill store: the resource
// style List/Create/Update calls the page controllers make, with an HTTP
// implementation and an in-process one backed by bill.Service.
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/zombor/billed/internal/bill"
)

// Client is the remote bill store
type Client interface {
	Bills() BillsResource
}

// BillsResource groups the bill operations of the store
type BillsResource interface {
	// List returns every bill visible to the caller
	List(ctx context.Context) ([]bill.Bill, error)

	// Create uploads a receipt and creates the draft bill referencing it
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)

	// Update persists the full bill for the draft named by req.Selector, or
	// creates it when no receipt upload made a draft
	Update(ctx context.Context, req UpdateRequest) (*bill.Bill, error)
}

// Headers tunes how a request is sent
type Headers struct {
	// NoContentType leaves the Content-Type to the payload itself so the
	// multipart boundary is announced, instead of the default JSON type.
	NoContentType bool
}

// CreateRequest carries a multipart receipt upload
type CreateRequest struct {
	Data    *FormData
	Headers Headers
}

// CreateResult is what the store answers to an upload
type CreateResult struct {
	FileURL string `json:"fileUrl"`
	Key     string `json:"key"`
}

// UpdateRequest carries the completed bill for a draft. An empty Selector
// creates a bill without a receipt.
type UpdateRequest struct {
	Selector string
	Data     bill.Bill
}

// Error is a store rejection. Its message is what the UI shows, e.g. "Erreur 404".
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Erreur %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type formField struct {
	name     string
	value    string
	filename string
	content  []byte
}

// FormData is an ordered multipart form, the payload of CreateRequest
type FormData struct {
	fields []formField
}

// NewFormData returns an empty form
func NewFormData() *FormData {
	return &FormData{}
}

// Set adds or replaces a text field
func (f *FormData) Set(name, value string) {
	f.put(formField{name: name, value: value})
}

// SetFile adds or replaces a file field, reading r fully
func (f *FormData) SetFile(name, filename string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	f.put(formField{name: name, filename: filename, content: content})
	return nil
}

func (f *FormData) put(field formField) {
	for i := range f.fields {
		if f.fields[i].name == field.name {
			f.fields[i] = field
			return
		}
	}
	f.fields = append(f.fields, field)
}

// Get returns a text field
func (f *FormData) Get(name string) (string, bool) {
	for _, field := range f.fields {
		if field.name == name && field.filename == "" {
			return field.value, true
		}
	}
	return "", false
}

// File returns a file field
func (f *FormData) File(name string) (string, []byte, bool) {
	for _, field := range f.fields {
		if field.name == name && field.filename != "" {
			return field.filename, field.content, true
		}
	}
	return "", nil, false
}

// Encode writes the form as multipart and returns the body with its content type
func (f *FormData) Encode() (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, field := range f.fields {
		if field.filename == "" {
			if err := writer.WriteField(field.name, field.value); err != nil {
				return nil, "", fmt.Errorf("writing field %s: %w", field.name, err)
			}
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field.name), quoteEscaper.Replace(field.filename)))
		header.Set("Content-Type", bill.ContentTypeFor(field.filename))
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("creating part %s: %w", field.name, err)
		}
		if _, err := part.Write(field.content); err != nil {
			return nil, "", fmt.Errorf("writing part %s: %w", field.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
