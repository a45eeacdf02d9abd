// Package ui serves the employee pages over HTTP. Controller navigation turns
// into 303 redirects and the session lives in signed cookies.
package ui

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/zombor/billed/internal/employee"
	"github.com/zombor/billed/internal/router"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
	"github.com/zombor/billed/internal/views"
)

const (
	defaultModalWidth = 800
	maxUploadSize     = int64(20 << 20)
)

// Server renders the employee pages
type Server struct {
	client     store.Client
	signer     *session.Signer
	policy     employee.UploadPolicy
	modalWidth int
	logger     *slog.Logger
	mux        *http.ServeMux

	// submissions tracks updates still running after their redirect
	submissions sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithUploadPolicy sets the policy of the new bill form
func WithUploadPolicy(p employee.UploadPolicy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// WithLogger sets the logger handed to the controllers
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithModalWidth sets the width of the receipt modal in pixels
func WithModalWidth(w int) Option {
	return func(s *Server) {
		s.modalWidth = w
	}
}

// NewServer creates a new Server with default mux
func NewServer(client store.Client, signer *session.Signer, opts ...Option) *Server {
	return NewServerWithMux(client, signer, http.NewServeMux(), opts...)
}

// NewServerWithMux registers the pages on mux, which may be shared with the API
func NewServerWithMux(client store.Client, signer *session.Signer, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{
		client:     client,
		signer:     signer,
		modalWidth: defaultModalWidth,
		logger:     slog.Default(),
		mux:        mux,
	}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleLogin)
	s.mux.HandleFunc("POST /login", s.handleLoginSubmit)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /admin/dashboard", s.requireUser(session.Admin, s.handleDashboard))
	s.mux.HandleFunc("GET /employee/bills", s.requireUser(session.Employee, s.handleBills))
	s.mux.HandleFunc("POST /employee/bills/new", s.requireUser(session.Employee, s.handleClickNewBill))
	s.mux.HandleFunc("GET /employee/bills/preview", s.requireUser(session.Employee, s.handlePreview))
	s.mux.HandleFunc("GET /employee/bill/new", s.requireUser(session.Employee, s.handleNewBill))
	s.mux.HandleFunc("POST /employee/bill/new", s.requireUser(session.Employee, s.handleSubmitBill))
	s.mux.HandleFunc("POST /employee/bill/new/file", s.requireUser(session.Employee, s.handleUploadFile))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Wait blocks until every submitted bill update has finished
func (s *Server) Wait() {
	s.submissions.Wait()
}

// exchange is the state of one page request
type exchange struct {
	w       http.ResponseWriter
	r       *http.Request
	session *session.CookieStore
	doc     *pageDocument
	target  string
}

func (e *exchange) navigate(path string) {
	e.target = path
}

// redirected answers with a 303 when a controller navigated
func (e *exchange) redirected() bool {
	if e.target == "" {
		return false
	}
	http.Redirect(e.w, e.r, router.URLFor(e.target), http.StatusSeeOther)
	return true
}

// pageDocument collects what the controllers draw during one request
type pageDocument struct {
	width  int
	alerts []string
	modal  template.HTML
}

func (d *pageDocument) ModalWidth() int {
	return d.width
}

func (d *pageDocument) ShowModal(content template.HTML) {
	d.modal = content
}

func (d *pageDocument) Alert(message string) {
	d.alerts = append(d.alerts, message)
}

func (d *pageDocument) alert() string {
	return strings.Join(d.alerts, " ")
}

func (s *Server) exchange(w http.ResponseWriter, r *http.Request) *exchange {
	return &exchange{
		w:       w,
		r:       r,
		session: session.NewCookieStore(w, r, s.signer),
		doc:     &pageDocument{width: s.modalWidth},
	}
}

func (s *Server) options(e *exchange) employee.Options {
	return employee.Options{
		Document: e.doc,
		Navigate: e.navigate,
		Store:    s.client,
		Session:  e.session,
		Logger:   s.logger,
	}
}

// requireUser redirects to the login page unless the session holds a user of kind
func (s *Server) requireUser(kind session.UserType, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := session.CurrentUser(session.NewCookieStore(w, r, s.signer))
		if !ok || u.Type != kind {
			http.Redirect(w, r, router.URLFor(router.PathLogin), http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, code int, path string, data router.Data) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if _, err := io.WriteString(w, string(views.Document(router.Routes(path, data)))); err != nil {
		s.logger.Error("Error writing page", "path", path, "error", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, router.PathLogin, router.Data{})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, router.PathLogin, router.Data{Login: views.LoginPage{Error: "Formulaire invalide"}})
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	if email == "" {
		s.render(w, http.StatusBadRequest, router.PathLogin, router.Data{Login: views.LoginPage{Error: "Veuillez saisir votre email"}})
		return
	}

	u := session.User{Type: session.Employee, Email: email}
	target := router.PathBills
	if session.UserType(r.PostFormValue("type")) == session.Admin {
		u.Type = session.Admin
		target = router.PathDashboard
	}

	e := s.exchange(w, r)
	if err := session.SetUser(e.session, u); err != nil {
		s.logger.Error("Error storing session", "error", err)
		s.render(w, http.StatusInternalServerError, router.PathLogin, router.Data{Login: views.LoginPage{Error: "Erreur 500"}})
		return
	}
	s.logger.Info("User logged in", "email", u.Email, "type", u.Type)
	e.navigate(target)
	e.redirected()
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	e := s.exchange(w, r)
	if err := e.session.RemoveItem(session.UserKey); err != nil {
		s.logger.Error("Error clearing session", "error", err)
	}
	e.navigate(router.PathLogin)
	e.redirected()
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, router.PathDashboard, router.Data{})
}

// listPage runs GetBills and builds the list page; errors show their store message
func (s *Server) listPage(ctx context.Context, e *exchange) views.BillsPage {
	bills, err := employee.NewBills(s.options(e)).GetBills(ctx)
	if err != nil {
		s.logger.Error("Error fetching bills", "error", err)
		message := err.Error()
		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			message = storeErr.Error()
		}
		return views.BillsPage{Error: message}
	}
	return views.BillsPage{Bills: employee.Rows(bills)}
}

func (s *Server) handleBills(w http.ResponseWriter, r *http.Request) {
	e := s.exchange(w, r)
	s.render(w, http.StatusOK, router.PathBills, router.Data{Bills: s.listPage(r.Context(), e)})
}

func (s *Server) handleClickNewBill(w http.ResponseWriter, r *http.Request) {
	e := s.exchange(w, r)
	employee.NewBills(s.options(e)).HandleClickNewBill()
	e.redirected()
}

// queryElement exposes the preview query as the clicked icon
type queryElement struct {
	r *http.Request
}

func (q queryElement) Attr(name string) (string, bool) {
	if name != "data-bill-url" {
		return "", false
	}
	v := q.r.URL.Query().Get("url")
	return v, v != ""
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	e := s.exchange(w, r)
	page := s.listPage(r.Context(), e)
	employee.NewBills(s.options(e)).HandleClickIconEye(queryElement{r: r})
	page.Modal = e.doc.modal
	s.render(w, http.StatusOK, router.PathBills, router.Data{Bills: page})
}

func (s *Server) handleNewBill(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, router.PathNewBill, router.Data{})
}

func (s *Server) newBill(e *exchange) *employee.NewBill {
	nb := employee.NewNewBill(s.options(e), employee.WithUploadPolicy(s.policy))
	valid, _ := strconv.ParseBool(e.r.FormValue("isFormImgValid"))
	nb.Restore(employee.Draft{
		BillID:         e.r.FormValue("billId"),
		FileURL:        e.r.FormValue("fileUrl"),
		FileName:       e.r.FormValue("fileName"),
		IsFormImgValid: valid,
	})
	return nb
}

func newBillPage(d employee.Draft, alert string) views.NewBillPage {
	return views.NewBillPage{
		BillID:         d.BillID,
		FileURL:        d.FileURL,
		FileName:       d.FileName,
		IsFormImgValid: d.IsFormImgValid,
		Alert:          alert,
	}
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.logger.Error("Error parsing upload form", "error", err)
		s.render(w, http.StatusBadRequest, router.PathNewBill, router.Data{})
		return
	}

	e := s.exchange(w, r)
	nb := s.newBill(e)

	var sel employee.FileSelection
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		sel = employee.FileSelection{Path: header.Filename, Name: header.Filename, Content: file}
	}

	code := http.StatusOK
	if err := nb.HandleChangeFile(r.Context(), sel); errors.Is(err, employee.ErrInvalidExtension) {
		code = http.StatusBadRequest
	}
	s.render(w, code, router.PathNewBill, router.Data{NewBill: newBillPage(nb.Draft(), e.doc.alert())})
}

func (s *Server) handleSubmitBill(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, router.PathNewBill, router.Data{})
		return
	}

	e := s.exchange(w, r)
	nb := s.newBill(e)

	// the update outlives the request that started it
	sub := nb.HandleSubmit(context.WithoutCancel(r.Context()), employee.BillForm{
		Type:       r.PostFormValue("type"),
		Name:       r.PostFormValue("name"),
		Date:       r.PostFormValue("date"),
		Amount:     r.PostFormValue("amount"),
		VAT:        r.PostFormValue("vat"),
		Pct:        r.PostFormValue("pct"),
		Commentary: r.PostFormValue("commentary"),
	})

	s.submissions.Add(1)
	go func() {
		defer s.submissions.Done()
		if _, err := sub.Wait(); err != nil && !errors.Is(err, employee.ErrReceiptRequired) {
			s.logger.Error("Error submitting bill", "id", nb.BillID, "error", err)
		}
	}()

	if e.redirected() {
		return
	}
	s.render(w, http.StatusUnprocessableEntity, router.PathNewBill, router.Data{NewBill: newBillPage(nb.Draft(), e.doc.alert())})
}
