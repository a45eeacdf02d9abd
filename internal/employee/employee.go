// Package employee holds the controllers behind the employee pages: the bill
// list and the new bill form.
package employee

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
	"github.com/zombor/billed/internal/views"
)

var (
	// ErrInvalidExtension is returned when the selected receipt is not an image
	ErrInvalidExtension = errors.New("invalid receipt extension")
	// ErrReceiptRequired is returned when submitting without an uploaded receipt
	ErrReceiptRequired = errors.New("receipt required")
)

const (
	invalidExtensionAlert = "Veuillez sélectionner un fichier avec une extension .jpg, .jpeg ou .png"
	receiptRequiredAlert  = "Veuillez ajouter un justificatif avant d'envoyer la note de frais"
)

// Document is the page the controllers draw on
type Document interface {
	ModalWidth() int
	ShowModal(content template.HTML)
	Alert(message string)
}

// Element is a rendered element the user interacted with.
// *goquery.Selection satisfies it.
type Element interface {
	Attr(name string) (string, bool)
}

// Options are the collaborators shared by both controllers. Store may be nil,
// in which case no network call is ever made.
type Options struct {
	Document Document
	Navigate func(path string)
	Store    store.Client
	Session  session.Store
	Logger   *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) navigate(path string) {
	if o.Navigate != nil {
		o.Navigate(path)
	}
}

func (o Options) email() string {
	u, _ := session.CurrentUser(o.Session)
	return u.Email
}

// FormattedBill is a bill ready for display
type FormattedBill struct {
	bill.Bill
	DisplayDate string
	StatusLabel string
}

// Row converts the bill into a table row
func (f FormattedBill) Row() views.Row {
	return views.Row{
		Type:        f.Type,
		Name:        f.Name,
		Date:        f.Date,
		DisplayDate: f.DisplayDate,
		Amount:      f.Amount,
		StatusLabel: f.StatusLabel,
		FileURL:     f.FileURL,
	}
}

// Rows converts bills into table rows
func Rows(bills []FormattedBill) []views.Row {
	rows := make([]views.Row, len(bills))
	for i, b := range bills {
		rows[i] = b.Row()
	}
	return rows
}

var frenchMonths = [...]string{"Jan", "Fév", "Mar", "Avr", "Mai", "Jui", "Jui", "Aoû", "Sep", "Oct", "Nov", "Déc"}

// formatDate turns 2004-04-04 into "4 Avr. 04"
func formatDate(date string) (string, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", date, err)
	}
	return fmt.Sprintf("%d %s. %02d", t.Day(), frenchMonths[t.Month()-1], t.Year()%100), nil
}

func formatStatus(status bill.Status) string {
	switch status {
	case bill.StatusPending:
		return "En attente"
	case bill.StatusAccepted:
		return "Accepté"
	case bill.StatusRefused:
		return "Refused"
	}
	return string(status)
}
