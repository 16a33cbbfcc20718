package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

type conversionRequest struct {
	FromProductID string `json:"from_product_id"`
	ToProductID   string `json:"to_product_id"`
	Quantity      int    `json:"quantity"`
	Notes         string `json:"notes"`
}

type decisionRequest struct {
	WarehouseID string `json:"warehouse_id"`
	Notes       string `json:"notes"`
}

type completionRequest struct {
	Count            int              `json:"count"`
	CylinderIDs      []string         `json:"cylinder_ids"`
	ExpectedVersions map[string]int64 `json:"expected_versions"`
	Notes            string           `json:"notes"`
}

type refillItem struct {
	CylinderID string `json:"cylinder_id"`
	ProductID  string `json:"product_id"`
}

type refillRequest struct {
	SupplierID  string       `json:"supplier_id"`
	WarehouseID string       `json:"warehouse_id"`
	Items       []refillItem `json:"items"`
	Notes       string       `json:"notes"`
}

type dispatchRequest struct {
	VehiclePlate string `json:"vehicle_plate"`
	DriverID     string `json:"driver_id"`
}

type receiveRequest struct {
	Identifiers []string `json:"identifiers"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *api) conversionRoutes(r chi.Router) {
	r.Route("/conversions", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req conversionRequest
			if !decode(w, r, &req) {
				return
			}
			out, res, err := a.svc.SubmitGasConversion(r.Context(), actorFrom(r.Context()), core.ConversionSubmission(req))
			a.result(w, r, http.StatusCreated, out, res, err)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.ListConversions(r.Context(), domain.ConversionStatus(r.URL.Query().Get("status")))
			a.read(w, r, nonNil(out), err)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.GetConversion(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, out, err)
		})
		r.Post("/{id}/approve", a.decideConversion(a.svc.ApproveConversion))
		r.Post("/{id}/reassign", a.decideConversion(a.svc.ReassignConversionWarehouse))
		r.Post("/{id}/reject", func(w http.ResponseWriter, r *http.Request) {
			var req decisionRequest
			if !decode(w, r, &req) {
				return
			}
			out, res, err := a.svc.RejectConversion(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Notes)
			a.result(w, r, http.StatusOK, out, res, err)
		})
		r.Post("/{id}/completions", func(w http.ResponseWriter, r *http.Request) {
			var req completionRequest
			if !decode(w, r, &req) {
				return
			}
			out, res, err := a.svc.RecordConversionCompletion(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), core.ConversionCompletion(req))
			a.result(w, r, http.StatusOK, out, res, err)
		})
	})
}

type conversionDecision func(ctx context.Context, actor core.Actor, id, warehouseID, notes string) (domain.GasConversionRequest, domain.Result, error)

func (a *api) decideConversion(decide conversionDecision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		if !decode(w, r, &req) {
			return
		}
		out, res, err := decide(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.WarehouseID, req.Notes)
		a.result(w, r, http.StatusOK, out, res, err)
	}
}

func (a *api) refillRoutes(r chi.Router) {
	r.Route("/refill-orders", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req refillRequest
			if !decode(w, r, &req) {
				return
			}
			items := make([]core.RefillItem, 0, len(req.Items))
			for _, it := range req.Items {
				items = append(items, core.RefillItem(it))
			}
			out, res, err := a.svc.SubmitRefillOrder(r.Context(), actorFrom(r.Context()), core.RefillSubmission{
				SupplierID: req.SupplierID, WarehouseID: req.WarehouseID, Items: items, Notes: req.Notes,
			})
			a.result(w, r, http.StatusCreated, out, res, err)
		})
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.ListRefillOrders(r.Context(), domain.RefillStatus(r.URL.Query().Get("status")))
			a.read(w, r, nonNil(out), err)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.GetRefillOrder(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, out, err)
		})
		r.Post("/{id}/confirm", a.dispatchRefill(a.svc.ConfirmRefillDispatch))
		r.Post("/{id}/dispatch", a.dispatchRefill(a.svc.DispatchRefillOrder))
		r.Post("/{id}/receipts", func(w http.ResponseWriter, r *http.Request) {
			var req receiveRequest
			if !decode(w, r, &req) {
				return
			}
			out, res, err := a.svc.ReceiveRefillItems(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Identifiers)
			a.result(w, r, http.StatusOK, out, res, err)
		})
		r.Post("/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			var req cancelRequest
			if !decode(w, r, &req) {
				return
			}
			out, res, err := a.svc.CancelRefillOrder(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
			a.result(w, r, http.StatusOK, out, res, err)
		})
	})
}

type refillStep func(ctx context.Context, actor core.Actor, id string, d core.RefillDispatch) (domain.RefillOrder, domain.Result, error)

// dispatchRefill serves confirm and dispatch. An empty body keeps the
// transport details recorded at confirmation.
func (a *api) dispatchRefill(step refillStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		out, res, err := step(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), core.RefillDispatch(req))
		a.result(w, r, http.StatusOK, out, res, err)
	}
}
