package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/zombor/billed/internal/bill"
)

// Local serves the store contract straight from a bill.Service in the same process
type Local struct {
	service *bill.Service
}

// NewLocal creates an in-process store
func NewLocal(service *bill.Service) *Local {
	return &Local{service: service}
}

// Bills returns the bill resource
func (l *Local) Bills() BillsResource {
	return &localBills{service: l.service}
}

type localBills struct {
	service *bill.Service
}

func (b *localBills) List(ctx context.Context) ([]bill.Bill, error) {
	stored, err := b.service.ListBills(ctx)
	if err != nil {
		return nil, rejection(err)
	}
	bills := make([]bill.Bill, 0, len(stored))
	for _, s := range stored {
		bills = append(bills, *s)
	}
	return bills, nil
}

func (b *localBills) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Data == nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: "missing form data"}
	}
	filename, content, ok := req.Data.File("file")
	if !ok {
		return nil, &Error{Status: http.StatusBadRequest, Message: "No file was selected. Please choose a file to upload."}
	}
	email, _ := req.Data.Get("email")

	created, err := b.service.CreateWithFile(ctx, email, filename, content, bill.ContentTypeFor(filename))
	if err != nil {
		return nil, rejection(err)
	}
	return &CreateResult{FileURL: created.FileURL, Key: created.ID}, nil
}

func (b *localBills) Update(ctx context.Context, req UpdateRequest) (*bill.Bill, error) {
	data := req.Data
	if req.Selector == "" {
		created, err := b.service.Create(ctx, &data)
		if err != nil {
			return nil, rejection(err)
		}
		return created, nil
	}
	updated, err := b.service.Update(ctx, req.Selector, &data)
	if err != nil {
		return nil, rejection(err)
	}
	return updated, nil
}

// rejection maps service errors onto the statuses the HTTP API would answer
func rejection(err error) *Error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bill.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bill.ErrInvalidFile), errors.Is(err, bill.ErrInvalidStatus):
		status = http.StatusBadRequest
	}
	return &Error{Status: status, Message: err.Error(), Err: err}
}
