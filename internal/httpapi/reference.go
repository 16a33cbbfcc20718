package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

// result writes the outcome of a mutation.
func (a *api) result(w http.ResponseWriter, r *http.Request, status int, out any, res domain.Result, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	mutated(w, status, out, res)
}

// read writes the outcome of a query.
func (a *api) read(w http.ResponseWriter, r *http.Request, out any, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ok(w, out)
}

func createHandler[T any](a *api, create func(context.Context, core.Actor, T) (T, domain.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in T
		if !decode(w, r, &in) {
			return
		}
		out, res, err := create(r.Context(), actorFrom(r.Context()), in)
		a.result(w, r, http.StatusCreated, out, res, err)
	}
}

func listHandler[T any](a *api, list func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := list(r.Context())
		if out == nil {
			out = []T{}
		}
		a.read(w, r, out, err)
	}
}

func (a *api) referenceRoutes(r chi.Router) {
	r.Route("/warehouses", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateWarehouse))
		r.Get("/", listHandler(a, a.svc.ListWarehouses))
	})
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateCustomer))
		r.Get("/", listHandler(a, a.svc.ListCustomers))
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.GetCustomer(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, out, err)
		})
		r.Get("/{id}/holdings", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.CustomerHoldings(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, nonNil(out), err)
		})
		r.Get("/{id}/loan-adjustments", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.ListLoanAdjustments(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, nonNil(out), err)
		})
	})
	r.Route("/gas-types", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateGasType))
		r.Get("/", listHandler(a, a.svc.ListGasTypes))
	})
	r.Route("/properties", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateProperty))
		r.Get("/", listHandler(a, a.svc.ListProperties))
		r.Get("/{id}/compatible-gas-types", func(w http.ResponseWriter, r *http.Request) {
			out, err := a.svc.CompatibleGasTypes(r.Context(), chi.URLParam(r, "id"))
			a.read(w, r, nonNil(out), err)
		})
	})
	r.Route("/products", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateProduct))
		r.Get("/", listHandler(a, a.svc.ListProducts))
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateSupplier))
		r.Get("/", listHandler(a, a.svc.ListSuppliers))
	})
	r.Route("/drivers", func(r chi.Router) {
		r.Post("/", createHandler(a, a.svc.CreateDriver))
		r.Get("/", listHandler(a, a.svc.ListDrivers))
	})
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
