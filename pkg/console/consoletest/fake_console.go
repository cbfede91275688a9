// Package consoletest provides an in-process fake of the admin console for
// tests.
package consoletest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/tcmartin/connectsync/pkg/console"
)

// DefaultCookie is the session cookie name the fake expects
const DefaultCookie = "lily-auth-prod-lhr"

// Flow is a flow stored by the fake console
type Flow struct {
	Summary console.FlowSummary

	// Content is returned by the export endpoint
	Content string
}

// FakeConsole mimics the console endpoints used by the engine
type FakeConsole struct {
	Server *httptest.Server

	// Token is the session token accepted by the fake
	Token string

	// FormAuth makes the login probe answer with a redirect
	FormAuth bool

	// SessionExpired makes every authenticated endpoint serve the login page
	SessionExpired bool

	// SaveErrors are returned with status 400 by the commit endpoint
	SaveErrors []console.ModuleError

	// SaveStatus overrides the commit response status when non-zero
	SaveStatus int

	// Transform rewrites content submitted to the import endpoint. Nil
	// returns the content unchanged.
	Transform func(content string) string

	// TransformError is reported by the import endpoint when set
	TransformError string

	// EditPage overrides the edit page markup when set
	EditPage string

	mu       sync.Mutex
	flows    []*Flow
	requests []string
	saves    []console.SaveRequest
	imports  []string
}

// New starts a fake console. Call Close when done.
func New(token string) *FakeConsole {
	f := &FakeConsole{Token: token}

	r := mux.NewRouter()
	r.HandleFunc("/connect/login/redirect", f.handleProbe).Methods(http.MethodPost)
	r.HandleFunc("/connect/entity-search/contact-flows", f.authenticated("list", f.handleList)).Methods(http.MethodGet)
	r.HandleFunc("/connect/contact-flows/export", f.authenticated("export", f.handleExport)).Methods(http.MethodGet)
	r.HandleFunc("/connect/contact-flows/edit", f.authenticated("edit-page", f.handleEditPage)).Methods(http.MethodGet)
	r.HandleFunc("/connect/contact-flows/edit", f.authenticated("save", f.handleSave)).Methods(http.MethodPost)
	r.HandleFunc("/connect/contact-flows/import", f.authenticated("import", f.handleImport)).Methods(http.MethodPost)

	f.Server = httptest.NewServer(r)
	return f
}

// URL returns the base URL of the fake
func (f *FakeConsole) URL() string {
	return f.Server.URL
}

// Close stops the server
func (f *FakeConsole) Close() {
	f.Server.Close()
}

// Update changes the configuration of a running fake
func (f *FakeConsole) Update(fn func(f *FakeConsole)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// AddFlow stores a flow
func (f *FakeConsole) AddFlow(summary console.FlowSummary, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows = append(f.flows, &Flow{Summary: summary, Content: content})
}

// Requests returns the names of the authenticated endpoints called so far
func (f *FakeConsole) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Saves returns the commit requests received so far
func (f *FakeConsole) Saves() []console.SaveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]console.SaveRequest(nil), f.saves...)
}

// Imports returns the decoded content of every import request
func (f *FakeConsole) Imports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.imports...)
}

// EditTokenFor returns the edit token the fake issues for a flow
func EditTokenFor(arn string) string {
	return "edit-" + arn[strings.LastIndex(arn, "/")+1:]
}

func (f *FakeConsole) authenticated(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, name)
		expired := f.SessionExpired
		f.mu.Unlock()

		cookie, err := r.Cookie(DefaultCookie)
		if expired || err != nil || cookie.Value != f.Token {
			w.Header().Set("Content-Type", "text/html;charset=UTF-8")
			w.Write([]byte("<html><body>Sign in</body></html>"))
			return
		}
		next(w, r)
	}
}

func (f *FakeConsole) handleProbe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("directoryAliasOrId") == "" {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	formAuth := f.FormAuth
	f.mu.Unlock()
	if formAuth {
		w.Header().Set("Location", "/connect/login")
		w.WriteHeader(http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeConsole) handleList(w http.ResponseWriter, r *http.Request) {
	var filter struct {
		Name string `json:"name"`
	}
	if raw := r.URL.Query().Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
	}

	f.mu.Lock()
	results := []console.FlowSummary{}
	for _, flow := range f.flows {
		if strings.Contains(flow.Summary.Name, filter.Name) {
			results = append(results, flow.Summary)
		}
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (f *FakeConsole) handleExport(w http.ResponseWriter, r *http.Request) {
	flow := f.find(r.URL.Query().Get("id"))
	if flow == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, []console.ExportedFlow{{
		Content: flow.Content,
		Status:  r.URL.Query().Get("status"),
	}})
}

func (f *FakeConsole) handleEditPage(w http.ResponseWriter, r *http.Request) {
	arn := r.URL.Query().Get("id")
	f.mu.Lock()
	page := f.EditPage
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	if page != "" {
		w.Write([]byte(page))
		return
	}
	fmt.Fprintf(w, "<html><script>\napp.constant(\"token\", \"%s\");\napp.constant(\"other\", \"x\");\n</script></html>", EditTokenFor(arn))
}

func (f *FakeConsole) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactFlowType string `json:"contactFlowType"`
		Token           string `json:"token"`
		FileData        string `json:"fileData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token != r.URL.Query().Get("token") {
		writeJSON(w, http.StatusBadRequest, []console.ModuleError{{ErrorType: "BadRequest", ErrorDetails: "malformed import"}})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, []console.ModuleError{{ErrorType: "BadRequest", ErrorDetails: "bad base64"}})
		return
	}

	f.mu.Lock()
	f.imports = append(f.imports, string(data))
	transformErr, transform := f.TransformError, f.Transform
	f.mu.Unlock()

	if transformErr != "" {
		writeJSON(w, http.StatusOK, []map[string]interface{}{{
			"errorType":    "InvalidContactFlow",
			"errorDetails": transformErr,
		}})
		return
	}

	content := string(data)
	if transform != nil {
		content = transform(content)
	}
	writeJSON(w, http.StatusOK, []map[string]interface{}{{
		"errorType":          nil,
		"errorDetails":       nil,
		"contactFlowContent": content,
	}})
}

func (f *FakeConsole) handleSave(w http.ResponseWriter, r *http.Request) {
	var req console.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, []console.ModuleError{{ErrorType: "BadRequest", ErrorDetails: err.Error()}})
		return
	}
	if r.URL.Query().Get("token") != EditTokenFor(req.ARN) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "bad token"})
		return
	}

	f.mu.Lock()
	f.saves = append(f.saves, req)
	saveErrors, saveStatus := f.SaveErrors, f.SaveStatus
	f.mu.Unlock()

	if len(saveErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, saveErrors)
		return
	}
	if saveStatus != 0 {
		writeJSON(w, saveStatus, map[string]string{"message": "failed"})
		return
	}

	if flow := f.find(req.ARN); flow != nil {
		f.mu.Lock()
		flow.Content = req.ContactFlowContent
		flow.Summary.Status = req.ContactFlowStatus
		f.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (f *FakeConsole) find(arn string) *Flow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flow := range f.flows {
		if flow.Summary.ARN == arn {
			return flow
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
