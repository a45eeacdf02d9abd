// Package views renders the employee pages from embedded templates. Every
// render function is pure: it returns markup and touches nothing else.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/url"
	"sort"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// ExpenseTypes lists the categories offered by the new bill form
var ExpenseTypes = []string{
	"Transports",
	"Restaurants et bars",
	"Hôtel et logement",
	"Services en ligne",
	"IT et électronique",
	"Equipement et matériel",
	"Fournitures de bureau",
}

// Row is one bill line of the list table
type Row struct {
	Type        string
	Name        string
	Date        string
	DisplayDate string
	Amount      float64
	StatusLabel string
	FileURL     string
}

// Shown is the date printed in the table
func (r Row) Shown() string {
	if r.DisplayDate != "" {
		return r.DisplayDate
	}
	return r.Date
}

// PreviewURL opens the bill list with this row's receipt in the modal
func (r Row) PreviewURL() string {
	return "/employee/bills/preview?" + url.Values{"url": {r.FileURL}}.Encode()
}

// BillsPage is the data of the bill list
type BillsPage struct {
	Bills []Row
	// Error replaces the list with the error page when set
	Error string
	// Modal is the receipt markup shown in the open modal, if any
	Modal template.HTML
}

// NewBillPage is the data of the new bill form
type NewBillPage struct {
	BillID         string
	FileURL        string
	FileName       string
	IsFormImgValid bool
	Alert          string
}

// LoginPage is the data of the login page
type LoginPage struct {
	Error string
}

type layout struct {
	Active string
}

// SortRows orders rows by raw date, most recent first. Equal dates keep their order.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date > rows[j].Date
	})
}

// BillsUI renders the bill list, or the error page when p.Error is set
func BillsUI(p BillsPage) template.HTML {
	if p.Error != "" {
		return ErrorPage(p.Error)
	}

	rows := make([]Row, len(p.Bills))
	copy(rows, p.Bills)
	SortRows(rows)

	return render("bills", struct {
		Layout layout
		Rows   []Row
		Modal  template.HTML
	}{layout{Active: "bills"}, rows, p.Modal})
}

// NewBillUI renders the new bill form carrying the draft in hidden fields
func NewBillUI(p NewBillPage) template.HTML {
	return render("new-bill", struct {
		NewBillPage
		Layout       layout
		ExpenseTypes []string
	}{p, layout{Active: "new-bill"}, ExpenseTypes})
}

// ErrorPage renders message verbatim
func ErrorPage(message string) template.HTML {
	return render("error", struct {
		Layout  layout
		Message string
	}{layout{}, message})
}

// LoginUI renders the employee and administrator login forms
func LoginUI(p LoginPage) template.HTML {
	return render("login", p)
}

// DashboardUI is the administrator landing page
func DashboardUI() template.HTML {
	return render("dashboard", nil)
}

// ReceiptModal renders the receipt image at the given width
func ReceiptModal(fileURL string, width int) template.HTML {
	return render("receipt", struct {
		URL   string
		Width int
	}{fileURL, width})
}

// Document wraps a page body into a complete HTML document
func Document(body template.HTML) template.HTML {
	return render("document", body)
}

func render(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
		return template.HTML(template.HTMLEscapeString(err.Error()))
	}
	return template.HTML(buf.String())
}
