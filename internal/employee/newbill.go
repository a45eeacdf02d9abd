package employee

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/router"
	"github.com/zombor/billed/internal/store"
)

const defaultPct = 20

// UploadPolicy decides whether a bill may be submitted without receipt
type UploadPolicy int

const (
	// UploadOptional submits whatever the upload outcome
	UploadOptional UploadPolicy = iota
	// UploadRequired refuses to submit until a receipt is uploaded
	UploadRequired
)

// NewBillOption configures a NewBill controller
type NewBillOption func(*NewBill)

// WithUploadPolicy sets the upload policy
func WithUploadPolicy(p UploadPolicy) NewBillOption {
	return func(n *NewBill) {
		n.policy = p
	}
}

// FileSelection is the receipt chosen in the file input
type FileSelection struct {
	// Path is the input value, e.g. C:\fakepath\example.jpg
	Path    string
	Name    string
	Content io.Reader
}

// BillForm holds the raw values of the new bill form
type BillForm struct {
	Type       string
	Name       string
	Date       string
	Amount     string
	VAT        string
	Pct        string
	Commentary string
}

// Draft is the upload state carried between requests
type Draft struct {
	BillID         string
	FileURL        string
	FileName       string
	IsFormImgValid bool
}

// NewBill drives the new bill form. One instance handles one draft and is
// not safe for concurrent use.
type NewBill struct {
	opts   Options
	policy UploadPolicy

	FileURL        string
	FileName       string
	BillID         string
	IsFormImgValid bool
}

// NewNewBill creates a NewBill controller
func NewNewBill(opts Options, options ...NewBillOption) *NewBill {
	n := &NewBill{opts: opts}
	for _, o := range options {
		o(n)
	}
	return n
}

// Restore loads a draft saved by an earlier request
func (n *NewBill) Restore(d Draft) {
	n.BillID = d.BillID
	n.FileURL = d.FileURL
	n.FileName = d.FileName
	n.IsFormImgValid = d.IsFormImgValid
}

// Draft returns the current upload state
func (n *NewBill) Draft() Draft {
	return Draft{
		BillID:         n.BillID,
		FileURL:        n.FileURL,
		FileName:       n.FileName,
		IsFormImgValid: n.IsFormImgValid,
	}
}

// baseName strips both Windows and slash separated directories
func baseName(p string) string {
	if i := strings.LastIndex(p, `\`); i >= 0 {
		p = p[i+1:]
	}
	return path.Base(p)
}

// HandleChangeFile validates the selected receipt and uploads it. An upload
// failure is logged and leaves the draft without file.
func (n *NewBill) HandleChangeFile(ctx context.Context, sel FileSelection) error {
	selected := sel.Path
	if selected == "" {
		selected = sel.Name
	}
	if !bill.ValidReceiptName(baseName(selected)) {
		n.IsFormImgValid = false
		if n.opts.Document != nil {
			n.opts.Document.Alert(invalidExtensionAlert)
		}
		return fmt.Errorf("%w: %s", ErrInvalidExtension, baseName(selected))
	}
	n.IsFormImgValid = true

	name := sel.Name
	if name == "" {
		name = baseName(sel.Path)
	}

	logger := n.opts.logger()
	if n.opts.Store == nil {
		logger.Debug("no store configured, skipping receipt upload", "file", name)
		return nil
	}

	form := store.NewFormData()
	content := sel.Content
	if content == nil {
		content = strings.NewReader("")
	}
	if err := form.SetFile("file", name, content); err != nil {
		logger.Error("failed to read receipt", "file", name, "error", err)
		n.clearFile()
		return nil
	}
	form.Set("email", n.opts.email())

	result, err := n.opts.Store.Bills().Create(ctx, store.CreateRequest{
		Data:    form,
		Headers: store.Headers{NoContentType: true},
	})
	if err != nil {
		logger.Error("failed to upload receipt", "file", name, "error", err)
		n.clearFile()
		return nil
	}

	n.BillID = result.Key
	n.FileURL = result.FileURL
	n.FileName = name
	return nil
}

func (n *NewBill) clearFile() {
	n.BillID = ""
	n.FileURL = ""
	n.FileName = ""
}

// HandleSubmit sends the completed bill and navigates to the list without
// waiting for the update. Its outcome is available from the Submission.
func (n *NewBill) HandleSubmit(ctx context.Context, form BillForm) *Submission {
	if n.policy == UploadRequired && (n.FileURL == "" || !n.IsFormImgValid) {
		if n.opts.Document != nil {
			n.opts.Document.Alert(receiptRequiredAlert)
		}
		return completed(nil, ErrReceiptRequired)
	}

	b := n.bill(form)

	var sub *Submission
	if n.opts.Store == nil {
		sub = completed(nil, nil)
	} else {
		sub = n.update(ctx, b)
	}

	n.opts.navigate(router.PathBills)
	return sub
}

func (n *NewBill) bill(form BillForm) bill.Bill {
	pct := float64(defaultPct)
	if strings.TrimSpace(form.Pct) != "" {
		pct = parseNumber(form.Pct)
	}

	return bill.Bill{
		Email:      n.opts.email(),
		Type:       form.Type,
		Name:       form.Name,
		Amount:     parseNumber(form.Amount),
		Date:       form.Date,
		VAT:        form.VAT,
		Pct:        pct,
		Commentary: form.Commentary,
		FileURL:    n.FileURL,
		FileName:   n.FileName,
		Status:     bill.StatusPending,
	}
}

func (n *NewBill) update(ctx context.Context, b bill.Bill) *Submission {
	sub := &Submission{done: make(chan struct{})}
	bills := n.opts.Store.Bills()
	selector := n.BillID
	go func() {
		defer close(sub.done)
		updated, err := bills.Update(ctx, store.UpdateRequest{Selector: selector, Data: b})
		if err != nil {
			sub.err = fmt.Errorf("updating bill %s: %w", selector, err)
			return
		}
		sub.bill = updated
	}()
	return sub
}

// parseNumber reads a form number, 0 when empty or invalid
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Submission is the pending update started by HandleSubmit
type Submission struct {
	done chan struct{}
	bill *bill.Bill
	err  error
}

func completed(b *bill.Bill, err error) *Submission {
	sub := &Submission{done: make(chan struct{}), bill: b, err: err}
	close(sub.done)
	return sub
}

// Done is closed once the update has finished
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the update finishes and returns its outcome
func (s *Submission) Wait() (*bill.Bill, error) {
	<-s.done
	return s.bill, s.err
}
