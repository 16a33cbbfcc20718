package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cylindercore/internal/archive"
	"cylindercore/internal/core"
)

type openAuditRequest struct {
	CustomerID string `json:"customer_id"`
	AuditorID  string `json:"auditor_id"`
	BranchID   string `json:"branch_id"`
}

type scanRequest struct {
	Identifier string `json:"identifier"`
}

type reportResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

var errNoArchive = &apiError{status: http.StatusServiceUnavailable, Code: "ARCHIVE_UNAVAILABLE", Message: "audit report archive is not configured"}

func (a *api) auditRoutes(r chi.Router) {
	r.Route("/audit-sessions", func(r chi.Router) {
		r.Post("/", a.openAudit)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.ListAuditSessions(r.Context(), r.URL.Query().Get("customer_id"))
			a.read(w, r, nonNil(out), err)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.GetAuditSession(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, out, err)
		})
		r.Post("/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			out, res, err := a.svc.StartAuditSession(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
			a.result(w, r, http.StatusOK, out, res, err)
		})
		r.Post("/{id}/scans", a.submitScan)
		r.Post("/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
			out, res, err := a.svc.CompleteAuditSession(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
			a.result(w, r, http.StatusOK, out, res, err)
		})
		r.Post("/{id}/archive", a.archiveAudit)
		r.Get("/{id}/results", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.AuditResults(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, nonNil(out), err)
		})
	})
	r.Route("/audit-reports", func(r chi.Router) {
		r.Get("/", a.listReports)
		r.Get("/{customer}/{session}", a.getReport)
	})
}

func (a *api) openAudit(w http.ResponseWriter, r *http.Request) {
	var req openAuditRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.OpenAuditSession(r.Context(), actorFrom(r.Context()), req.CustomerID, req.AuditorID, req.BranchID)
	a.result(w, r, http.StatusCreated, out, res, err)
}

func (a *api) submitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.SubmitScan(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Identifier)
	a.result(w, r, http.StatusOK, out, res, err)
}

func (a *api) archiveAudit(w http.ResponseWriter, r *http.Request) {
	key, err := a.svc.ArchiveAuditReport(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, core.ErrArchiveNotConfigured) {
		fail(w, errNoArchive)
		return
	}
	a.read(w, r, reportResponse{Key: key}, err)
}

func (a *api) listReports(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		fail(w, errNoArchive)
		return
	}
	out, err := a.reports.ListReports(r.Context(), r.URL.Query().Get("customer_id"))
	a.read(w, r, nonNil(out), err)
}

// getReport returns a stored report. With ?url=1 it returns a signed
// download link instead when the backend supports one.
func (a *api) getReport(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		fail(w, errNoArchive)
		return
	}
	key := archive.ReportKey(chi.URLParam(r, "customer"), chi.URLParam(r, "session"))
	if r.URL.Query().Get("url") != "" {
		if _, err := a.reports.Store().Head(r.Context(), key); err != nil {
			a.archiveFail(w, r, key, err)
			return
		}
		link, err := a.reports.ReportURL(r.Context(), key, 15*time.Minute)
		if errors.Is(err, archive.ErrUnsupported) {
			fail(w, &apiError{status: http.StatusNotImplemented, Code: "BAD_REQUEST", Message: "archive backend cannot sign URLs"})
			return
		}
		if err != nil {
			a.archiveFail(w, r, key, err)
			return
		}
		ok(w, reportResponse{Key: key, URL: link})
		return
	}
	report, err := a.reports.LoadAuditReport(r.Context(), key)
	if err != nil {
		a.archiveFail(w, r, key, err)
		return
	}
	ok(w, report)
}

func (a *api) archiveFail(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		fail(w, &apiError{status: http.StatusNotFound, Code: "NOT_FOUND", Message: "no report stored under " + key})
		return
	}
	a.fail(w, r, err)
}
