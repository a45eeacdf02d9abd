package bill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// presignExpiry bounds how long a redirect link to a receipt stays valid
const presignExpiry = 15 * time.Minute

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles bill operations
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage) *Service {
	return NewServiceWithDeps(db, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_ ")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// FileURL is the API location serving the receipt of a bill
func FileURL(id string) string {
	return "/api/bills/" + id + "/file"
}

// CreateWithFile stores a receipt and saves a pending draft bill referencing it
func (s *Service) CreateWithFile(ctx context.Context, email, filename string, data []byte, contentType string) (*Bill, error) {
	if !ValidReceiptName(filename) {
		return nil, fmt.Errorf("%w: %q must end in .jpg, .jpeg or .png", ErrInvalidFile, filename)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFor(filename)
	}

	key, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	bill := &Bill{
		ID:          id,
		Email:       email,
		FileURL:     FileURL(id),
		FileName:    filename,
		FileKey:     key,
		ContentType: contentType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveBill(bill); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			slog.Warn("Failed to clean up receipt", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	return bill, nil
}

// Create saves a bill submitted without a receipt
func (s *Service) Create(_ context.Context, b *Bill) (*Bill, error) {
	if b.Status != "" && !b.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, b.Status)
	}
	if b.FileName != "" && !ValidReceiptName(b.FileName) {
		return nil, fmt.Errorf("%w: %q must end in .jpg, .jpeg or .png", ErrInvalidFile, b.FileName)
	}

	now := s.timeSource.Now()
	created := *b
	created.ID = s.idGenerator.Generate()
	created.FileKey = ""
	created.ContentType = ""
	created.Status = Status(firstNonEmpty(string(b.Status), string(StatusPending)))
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.db.SaveBill(&created); err != nil {
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}
	return &created, nil
}

// Update completes or edits a stored bill. Fields left empty in patch keep
// their stored value; the receipt reference can never be replaced. A patch
// naming another owner is answered as if the bill did not exist.
func (s *Service) Update(ctx context.Context, id string, patch *Bill) (*Bill, error) {
	existing, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	if existing.Email != "" && patch.Email != "" && patch.Email != existing.Email {
		return nil, fmt.Errorf("getting bill: %w: %s", ErrNotFound, id)
	}

	if patch.Status != "" && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, patch.Status)
	}
	if patch.FileName != "" && !ValidReceiptName(patch.FileName) {
		return nil, fmt.Errorf("%w: %q must end in .jpg, .jpeg or .png", ErrInvalidFile, patch.FileName)
	}

	updated := *patch
	updated.ID = existing.ID
	updated.FileKey = existing.FileKey
	updated.ContentType = existing.ContentType
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.timeSource.Now()
	updated.Email = firstNonEmpty(patch.Email, existing.Email)
	updated.FileName = firstNonEmpty(patch.FileName, existing.FileName)
	updated.CommentAdmin = firstNonEmpty(patch.CommentAdmin, existing.CommentAdmin)
	if existing.FileKey != "" {
		updated.FileURL = existing.FileURL
	} else {
		updated.FileURL = firstNonEmpty(patch.FileURL, existing.FileURL)
	}
	updated.Status = Status(firstNonEmpty(string(patch.Status), string(existing.Status), string(StatusPending)))

	if err := s.db.SaveBill(&updated); err != nil {
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}
	return &updated, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(_ context.Context, id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns all bills
func (s *Service) ListBills(_ context.Context) ([]*Bill, error) {
	bills, err := s.db.ListBills()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// DeleteBill removes a bill and its receipt
func (s *Service) DeleteBill(ctx context.Context, id string) error {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if bill.FileKey != "" {
		if err := s.storage.Delete(ctx, bill.FileKey); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete receipt", "key", bill.FileKey, "error", err)
		}
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// GetBillFile retrieves the receipt bytes and MIME type of a bill
func (s *Service) GetBillFile(ctx context.Context, id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}
	if bill.FileKey == "" {
		return nil, "", fmt.Errorf("%w: bill %s has no receipt", ErrNotFound, id)
	}

	data, err := s.storage.Get(ctx, bill.FileKey)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, bill.ContentType, nil
}

// ErrNoPresign is returned by FileLink when the storage serves files itself
var ErrNoPresign = errors.New("storage does not presign links")

// FileLink returns a direct download link for the receipt of a bill when the
// storage supports presigning.
func (s *Service) FileLink(ctx context.Context, id string) (string, error) {
	presigner, ok := s.storage.(Presigner)
	if !ok {
		return "", ErrNoPresign
	}
	bill, err := s.db.GetBill(id)
	if err != nil {
		return "", fmt.Errorf("getting bill: %w", err)
	}
	if bill.FileKey == "" {
		return "", fmt.Errorf("%w: bill %s has no receipt", ErrNotFound, id)
	}
	return presigner.PresignGet(ctx, bill.FileKey, presignExpiry)
}
