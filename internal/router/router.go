// Package router names the pages of the application and renders the view
// bound to each name.
package router

import (
	"html/template"
	"strings"

	"github.com/zombor/billed/internal/views"
)

// Path identifiers passed to the navigate function
const (
	PathLogin     = "/"
	PathBills     = "#employee/bills"
	PathNewBill   = "#employee/bill/new"
	PathDashboard = "#admin/dashboard"
)

// URLFor maps a path identifier to the HTTP path serving it
func URLFor(path string) string {
	if rest, ok := strings.CutPrefix(path, "#"); ok {
		return "/" + rest
	}
	if path == "" {
		return PathLogin
	}
	return path
}

// PathFromURL maps an HTTP path back to its identifier
func PathFromURL(urlPath string) string {
	switch strings.TrimSuffix(urlPath, "/") {
	case "", PathLogin:
		return PathLogin
	case "/employee/bills":
		return PathBills
	case "/employee/bill/new":
		return PathNewBill
	case "/admin/dashboard":
		return PathDashboard
	}
	return urlPath
}

// Data is what the routed views need
type Data struct {
	Bills   views.BillsPage
	NewBill views.NewBillPage
	Login   views.LoginPage
}

// Routes renders the view bound to pathname. Unknown names render the login page.
func Routes(pathname string, data Data) template.HTML {
	switch pathname {
	case PathBills:
		return views.BillsUI(data.Bills)
	case PathNewBill:
		return views.NewBillUI(data.NewBill)
	case PathDashboard:
		return views.DashboardUI()
	}
	return views.LoginUI(data.Login)
}
