package employee

import (
	"context"
	"fmt"
	"html/template"
	"sort"

	"github.com/zombor/billed/internal/router"
	"github.com/zombor/billed/internal/views"
)

// Bills drives the bill list page
type Bills struct {
	opts Options
}

// NewBills creates a Bills controller
func NewBills(opts Options) *Bills {
	return &Bills{opts: opts}
}

// GetBills lists the session user's bills, most recent first. Without a store
// it returns nothing and no error.
func (b *Bills) GetBills(ctx context.Context) ([]FormattedBill, error) {
	if b.opts.Store == nil {
		return nil, nil
	}

	records, err := b.opts.Store.Bills().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}

	email := b.opts.email()
	logger := b.opts.logger()

	bills := make([]FormattedBill, 0, len(records))
	for _, rec := range records {
		if email != "" && rec.Email != email {
			continue
		}
		f := FormattedBill{Bill: rec, StatusLabel: formatStatus(rec.Status)}
		display, err := formatDate(rec.Date)
		if err != nil {
			logger.Warn("keeping unformatted bill date", "id", rec.ID, "date", rec.Date, "error", err)
			display = rec.Date
		}
		f.DisplayDate = display
		bills = append(bills, f)
	}

	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].Date > bills[j].Date
	})

	return bills, nil
}

// HandleClickNewBill opens the new bill form
func (b *Bills) HandleClickNewBill() {
	b.opts.navigate(router.PathNewBill)
}

// HandleClickIconEye shows the receipt referenced by icon in the modal
func (b *Bills) HandleClickIconEye(icon Element) template.HTML {
	fileURL, _ := icon.Attr("data-bill-url")

	width := 0
	if b.opts.Document != nil {
		width = b.opts.Document.ModalWidth() / 2
	}

	content := views.ReceiptModal(fileURL, width)
	if b.opts.Document != nil {
		b.opts.Document.ShowModal(content)
	}
	return content
}
