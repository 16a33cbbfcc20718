package httpapi

import (
	"net/http"
	"time"

	"cylindercore/internal/core"
	"cylindercore/pkg/domain"
)

type loanAdditionRequest struct {
	CustomerID       string           `json:"customer_id"`
	CylinderIDs      []string         `json:"cylinder_ids"`
	ExpectedVersions map[string]int64 `json:"expected_versions"`
	Date             time.Time        `json:"adjustment_date"`
	Notes            string           `json:"notes"`
}

type returnItem struct {
	CylinderID string                 `json:"cylinder_id"`
	Condition  domain.ReturnCondition `json:"condition"`
}

type loanRemovalRequest struct {
	CustomerID       string           `json:"customer_id"`
	WarehouseID      string           `json:"warehouse_id"`
	Items            []returnItem     `json:"items"`
	ExpectedVersions map[string]int64 `json:"expected_versions"`
	Date             time.Time        `json:"adjustment_date"`
	Notes            string           `json:"notes"`
}

type loanTransferRequest struct {
	FromCustomerID   string           `json:"from_customer_id"`
	ToCustomerID     string           `json:"to_customer_id"`
	CylinderIDs      []string         `json:"cylinder_ids"`
	ExpectedVersions map[string]int64 `json:"expected_versions"`
	Date             time.Time        `json:"adjustment_date"`
	Notes            string           `json:"notes"`
}

func (a *api) commitAddition(w http.ResponseWriter, r *http.Request) {
	var req loanAdditionRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.CommitAddition(r.Context(), actorFrom(r.Context()), core.LoanAddition{
		CustomerID:       req.CustomerID,
		CylinderIDs:      req.CylinderIDs,
		ExpectedVersions: req.ExpectedVersions,
		Date:             req.Date,
		Notes:            req.Notes,
	})
	a.result(w, r, http.StatusCreated, out, res, err)
}

func (a *api) commitRemoval(w http.ResponseWriter, r *http.Request) {
	var req loanRemovalRequest
	if !decode(w, r, &req) {
		return
	}
	items := make([]core.ReturnItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, core.ReturnItem{CylinderID: it.CylinderID, Condition: it.Condition})
	}
	out, res, err := a.svc.CommitRemoval(r.Context(), actorFrom(r.Context()), core.LoanRemoval{
		CustomerID:       req.CustomerID,
		WarehouseID:      req.WarehouseID,
		Items:            items,
		ExpectedVersions: req.ExpectedVersions,
		Date:             req.Date,
		Notes:            req.Notes,
	})
	a.result(w, r, http.StatusCreated, out, res, err)
}

func (a *api) commitTransfer(w http.ResponseWriter, r *http.Request) {
	var req loanTransferRequest
	if !decode(w, r, &req) {
		return
	}
	out, res, err := a.svc.CommitTransfer(r.Context(), actorFrom(r.Context()), core.LoanTransfer{
		FromCustomerID:   req.FromCustomerID,
		ToCustomerID:     req.ToCustomerID,
		CylinderIDs:      req.CylinderIDs,
		ExpectedVersions: req.ExpectedVersions,
		Date:             req.Date,
		Notes:            req.Notes,
	})
	a.result(w, r, http.StatusCreated, out, res, err)
}
