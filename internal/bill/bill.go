package bill

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Status is the review state of a bill
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

var (
	// ErrNotFound is returned when a bill does not exist
	ErrNotFound = errors.New("bill not found")
	// ErrInvalidFile is returned for receipts that are not jpg, jpeg or png
	ErrInvalidFile = errors.New("invalid receipt file")
	// ErrInvalidStatus is returned for unknown status values
	ErrInvalidStatus = errors.New("invalid bill status")
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRefused:
		return true
	}
	return false
}

// Bill represents one expense report submitted by an employee
type Bill struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Amount       float64   `json:"amount"`
	Date         string    `json:"date"` // YYYY-MM-DD
	VAT          string    `json:"vat"`
	Pct          float64   `json:"pct"`
	Commentary   string    `json:"commentary"`
	FileURL      string    `json:"fileUrl"`
	FileName     string    `json:"fileName"`
	Status       Status    `json:"status"`
	CommentAdmin string    `json:"commentAdmin,omitempty"`
	FileKey      string    `json:"fileKey,omitempty"`     // storage key of the receipt
	ContentType  string    `json:"contentType,omitempty"` // MIME type of the receipt
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// allowedExtensions are the receipt formats accepted for upload
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ValidReceiptName reports whether name ends in .jpg, .jpeg or .png, ignoring case
func ValidReceiptName(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ContentTypeFor returns the image MIME type for a receipt file name
func ContentTypeFor(name string) string {
	if ct, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
