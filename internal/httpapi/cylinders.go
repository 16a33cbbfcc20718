package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

type registerCylinderRequest struct {
	Barcode         string                `json:"barcode"`
	SerialNumber    string                `json:"serial_number"`
	PropertyID      string                `json:"cylinder_property_id"`
	Status          domain.CylinderStatus `json:"status"`
	WarehouseID     string                `json:"warehouse_id"`
	GasTypeID       string                `json:"gas_type_id"`
	ManufactureDate time.Time             `json:"manufacture_date"`
	LastFillDate    *time.Time            `json:"last_fill_date"`
	Notes           string                `json:"notes"`
}

type transitionRequest struct {
	Target          domain.CylinderStatus `json:"target_status"`
	GasTypeID       string                `json:"gas_type_id"`
	WarehouseID     string                `json:"warehouse_id"`
	CustomerID      string                `json:"customer_id"`
	ExpectedVersion int64                 `json:"expected_version"`
	Notes           string                `json:"notes"`
}

type replayResponse struct {
	CylinderID     string                `json:"cylinder_id"`
	Status         domain.CylinderStatus `json:"status"`
	ReplayedStatus domain.CylinderStatus `json:"replayed_status"`
	Consistent     bool                  `json:"consistent"`
}

func (a *api) cylinderRoutes(r chi.Router) {
	r.Route("/cylinders", func(r chi.Router) {
		r.Post("/", a.registerCylinder)
		r.Get("/", a.listCylinders)
		r.Get("/lookup", func(w http.ResponseWriter, r *http.Request) {
			identifier := r.URL.Query().Get("identifier")
			if identifier == "" {
				fail(w, badRequest("identifier is required"))
				return
			}
			out, err := a.svc.FindCylinder(r.Context(), identifier)
			a.read(w, r, out, err)
		})
		r.Get("/barcodes/{barcode}/exists", func(w http.ResponseWriter, r *http.Request) {
			exists, err := a.svc.CheckBarcodeExists(r.Context(), chi.URLParam(r, "barcode"))
			a.read(w, r, map[string]bool{"exists": exists}, err)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.GetCylinder(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, out, err)
		})
		r.Post("/{id}/transitions", a.applyTransition)
		r.Get("/{id}/movements", a.listMovements)
		r.Get("/{id}/replay", a.replayCylinder)
	})
}

func (a *api) registerCylinder(w http.ResponseWriter, r *http.Request) {
	var req registerCylinderRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.RegisterCylinder(r.Context(), actorFrom(r.Context()), core.CylinderRegistration{
		Barcode:         req.Barcode,
		SerialNumber:    req.SerialNumber,
		PropertyID:      req.PropertyID,
		Status:          req.Status,
		WarehouseID:     req.WarehouseID,
		GasTypeID:       req.GasTypeID,
		ManufactureDate: req.ManufactureDate,
		LastFillDate:    req.LastFillDate,
		Notes:           req.Notes,
	})
	a.result(w, r, http.StatusCreated, out, res, err)
}

func (a *api) listCylinders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := a.svc.ListCylinders(r.Context(), domain.CylinderFilter{
		Status:      domain.CylinderStatus(q.Get("status")),
		WarehouseID: q.Get("warehouse_id"),
		OwnerID:     q.Get("owner_id"),
		PropertyID:  q.Get("property_id"),
	})
	a.read(w, r, nonNil(out), err)
}

func (a *api) applyTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.ApplyTransition(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Target, core.TransitionContext{
		GasTypeID:       req.GasTypeID,
		WarehouseID:     req.WarehouseID,
		CustomerID:      req.CustomerID,
		ExpectedVersion: req.ExpectedVersion,
		Notes:           req.Notes,
	})
	a.result(w, r, http.StatusOK, out, res, err)
}

// listMovements returns one page of the ledger when limit is given, the
// whole ledger otherwise.
func (a *api) listMovements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	offset, err := queryInt(r, "offset")
	if err != nil {
		fail(w, badRequest(err.Error()))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		fail(w, badRequest(err.Error()))
		return
	}
	if limit > 0 || offset > 0 {
		out, err := a.svc.MovementPage(r.Context(), id, offset, limit)
		a.read(w, r, nonNil(out), err)
		return
	}
	seq, err := a.svc.ListMovements(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ok(w, nonNil(slices.Collect(seq)))
}

func (a *api) replayCylinder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := a.svc.GetCylinder(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	replayed, consistent, err := a.svc.ReplayCylinderStatus(r.Context(), id)
	a.read(w, r, replayResponse{CylinderID: id, Status: c.Status, ReplayedStatus: replayed, Consistent: consistent}, err)
}
