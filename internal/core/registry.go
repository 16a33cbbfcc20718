package core

import (
	"context"
	"strings"
	"time"

	"cylindercore/pkg/domain"
)

// CylinderRegistration is the intake input of a new cylinder.
type CylinderRegistration struct {
	Barcode         string
	SerialNumber    string
	PropertyID      string
	Status          domain.CylinderStatus
	WarehouseID     string
	GasTypeID       string
	ManufactureDate time.Time
	LastFillDate    *time.Time
	Notes           string
}

// RegisterCylinder creates a cylinder at intake and appends its intake movement.
func (s *Service) RegisterCylinder(ctx context.Context, actor Actor, reg CylinderRegistration) (domain.Cylinder, domain.Result, error) {
	var created domain.Cylinder
	res, err := s.run(ctx, "register_cylinder", actor, func(tx domain.Transaction) (string, error) {
		c, err := s.buildCylinder(tx, reg)
		if err != nil {
			return "", err
		}
		created, err = tx.CreateCylinder(c)
		if err != nil {
			return "", err
		}
		_, err = tx.AppendMovement(domain.MovementRecord{
			CylinderID:  created.ID,
			Type:        domain.MovementIntake,
			ToStatus:    created.Status,
			ToWarehouse: created.WarehouseID,
			ActorID:     actor.ID,
			Notes:       reg.Notes,
			Timestamp:   s.now(),
		})
		return created.ID, err
	})
	return created, res, err
}

func (s *Service) buildCylinder(view domain.TransactionView, reg CylinderRegistration) (domain.Cylinder, error) {
	barcode := domain.NormalizeIdentifier(reg.Barcode)
	if err := domain.ValidateBarcode(barcode); err != nil {
		return domain.Cylinder{}, err
	}
	serial := domain.NormalizeIdentifier(reg.SerialNumber)
	if serial == "" {
		return domain.Cylinder{}, domain.ValidationError{Field: "serial_number", Message: "required"}
	}
	if !domain.IsIntakeStatus(reg.Status) {
		return domain.Cylinder{}, domain.ValidationError{Field: "status", Message: "intake status must be AtWarehouseEmpty or AtWarehouseFilled"}
	}
	if reg.ManufactureDate.IsZero() {
		return domain.Cylinder{}, domain.ValidationError{Field: "manufacture_date", Message: "required"}
	}
	property, ok := view.FindProperty(reg.PropertyID)
	if !ok {
		return domain.Cylinder{}, domain.NotFoundError{Entity: domain.EntityProperty, ID: reg.PropertyID}
	}
	if reg.WarehouseID == "" {
		return domain.Cylinder{}, domain.ValidationError{Field: "warehouse_id", Message: "required at intake"}
	}
	if _, ok := view.FindWarehouse(reg.WarehouseID); !ok {
		return domain.Cylinder{}, domain.NotFoundError{Entity: domain.EntityWarehouse, ID: reg.WarehouseID}
	}
	warehouse := reg.WarehouseID
	c := domain.Cylinder{
		Barcode:         barcode,
		SerialNumber:    serial,
		Status:          reg.Status,
		PropertyID:      property.ID,
		WarehouseID:     &warehouse,
		ManufactureDate: reg.ManufactureDate.UTC(),
		LastFillDate:    reg.LastFillDate,
	}
	switch {
	case reg.Status == domain.StatusAtWarehouseFilled:
		if reg.GasTypeID == "" {
			return domain.Cylinder{}, domain.ValidationError{Field: "gas_type_id", Message: "required for a filled cylinder"}
		}
		if err := s.checkFill(view, reg.GasTypeID, property); err != nil {
			return domain.Cylinder{}, err
		}
		gas := reg.GasTypeID
		c.GasTypeID = &gas
	case reg.GasTypeID != "":
		return domain.Cylinder{}, domain.ValidationError{Field: "gas_type_id", Message: "must be empty for an empty cylinder"}
	}
	return c, nil
}

// CheckBarcodeExists reports whether a barcode is already registered.
func (s *Service) CheckBarcodeExists(ctx context.Context, barcode string) (bool, error) {
	barcode = domain.NormalizeIdentifier(barcode)
	if err := domain.ValidateBarcode(barcode); err != nil {
		return false, err
	}
	return query(ctx, s, func(v domain.TransactionView) (bool, error) {
		_, ok := v.FindCylinderByBarcode(barcode)
		return ok, nil
	})
}

// GetCylinder returns a cylinder by id.
func (s *Service) GetCylinder(ctx context.Context, id string) (domain.Cylinder, error) {
	return query(ctx, s, func(v domain.TransactionView) (domain.Cylinder, error) {
		c, ok := v.FindCylinder(id)
		if !ok {
			return domain.Cylinder{}, domain.NotFoundError{Entity: domain.EntityCylinder, ID: id}
		}
		return c, nil
	})
}

// FindCylinder resolves an identifier as a barcode, then a serial number,
// then a cylinder id.
func (s *Service) FindCylinder(ctx context.Context, identifier string) (domain.Cylinder, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	return query(ctx, s, func(v domain.TransactionView) (domain.Cylinder, error) {
		if c, ok := resolveCylinder(v, identifier); ok {
			return c, nil
		}
		return domain.Cylinder{}, domain.NotFoundError{Entity: domain.EntityCylinder, ID: identifier}
	})
}

func resolveCylinder(v domain.TransactionView, identifier string) (domain.Cylinder, bool) {
	if identifier == "" {
		return domain.Cylinder{}, false
	}
	if c, ok := v.FindCylinderByBarcode(identifier); ok {
		return c, true
	}
	if c, ok := v.FindCylinderBySerial(identifier); ok {
		return c, true
	}
	return v.FindCylinder(identifier)
}

// ListCylinders lists cylinders matching filter.
func (s *Service) ListCylinders(ctx context.Context, filter domain.CylinderFilter) ([]domain.Cylinder, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ValidationError{Field: "status", Message: "unknown status " + string(filter.Status)}
	}
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Cylinder, error) {
		return v.ListCylinders(filter), nil
	})
}

// CustomerHoldings lists the cylinders currently owned by a customer.
func (s *Service) CustomerHoldings(ctx context.Context, customerID string) ([]domain.Cylinder, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Cylinder, error) {
		if _, ok := v.FindCustomer(customerID); !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityCustomer, ID: customerID}
		}
		return v.ListCylinders(domain.CylinderFilter{OwnerID: customerID}), nil
	})
}

// CompatibleGasTypes lists the gas types that may be filled into a property.
func (s *Service) CompatibleGasTypes(ctx context.Context, propertyID string) ([]domain.GasType, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.GasType, error) {
		p, ok := v.FindProperty(propertyID)
		if !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityProperty, ID: propertyID}
		}
		return domain.GasTypesFor(s.catalog, p, v.ListGasTypes()), nil
	})
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.ValidationError{Field: field, Message: "required"}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateWarehouse registers a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, actor Actor, w domain.Warehouse) (domain.Warehouse, domain.Result, error) {
	var created domain.Warehouse
	res, err := s.run(ctx, "create_warehouse", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("code", w.Code), required("name", w.Name)); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateWarehouse(w)
		return created.ID, err
	})
	return created, res, err
}

// CreateCustomer registers a customer.
func (s *Service) CreateCustomer(ctx context.Context, actor Actor, c domain.Customer) (domain.Customer, domain.Result, error) {
	var created domain.Customer
	res, err := s.run(ctx, "create_customer", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("code", c.Code), required("name", c.Name), required("branch_id", c.BranchID)); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateCustomer(c)
		return created.ID, err
	})
	return created, res, err
}

// CreateGasType registers a gas type.
func (s *Service) CreateGasType(ctx context.Context, actor Actor, g domain.GasType) (domain.GasType, domain.Result, error) {
	var created domain.GasType
	res, err := s.run(ctx, "create_gas_type", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("code", g.Code), required("name", g.Name)); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateGasType(g)
		return created.ID, err
	})
	return created, res, err
}

// CreateProperty registers a cylinder property profile.
func (s *Service) CreateProperty(ctx context.Context, actor Actor, p domain.CylinderProperty) (domain.CylinderProperty, domain.Result, error) {
	var created domain.CylinderProperty
	res, err := s.run(ctx, "create_property", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("name", p.Name), required("material", p.Material)); err != nil {
			return "", err
		}
		if p.CapacityLiters <= 0 {
			return "", domain.ValidationError{Field: "capacity_liters", Message: "must be positive"}
		}
		var err error
		created, err = tx.CreateProperty(p)
		return created.ID, err
	})
	return created, res, err
}

// CreateProduct registers a product pairing a gas type with a property profile.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, p domain.Product) (domain.Product, domain.Result, error) {
	var created domain.Product
	res, err := s.run(ctx, "create_product", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("code", p.Code), required("name", p.Name)); err != nil {
			return "", err
		}
		property, ok := tx.FindProperty(p.PropertyID)
		if !ok {
			return "", domain.NotFoundError{Entity: domain.EntityProperty, ID: p.PropertyID}
		}
		if err := s.checkFill(tx, p.GasTypeID, property); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateProduct(p)
		return created.ID, err
	})
	return created, res, err
}

// CreateSupplier registers a refill supplier.
func (s *Service) CreateSupplier(ctx context.Context, actor Actor, sup domain.Supplier) (domain.Supplier, domain.Result, error) {
	var created domain.Supplier
	res, err := s.run(ctx, "create_supplier", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("code", sup.Code), required("name", sup.Name)); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateSupplier(sup)
		return created.ID, err
	})
	return created, res, err
}

// CreateDriver registers a driver.
func (s *Service) CreateDriver(ctx context.Context, actor Actor, d domain.Driver) (domain.Driver, domain.Result, error) {
	var created domain.Driver
	res, err := s.run(ctx, "create_driver", actor, func(tx domain.Transaction) (string, error) {
		if err := firstError(required("name", d.Name), required("license_number", d.LicenseNumber)); err != nil {
			return "", err
		}
		var err error
		created, err = tx.CreateDriver(d)
		return created.ID, err
	})
	return created, res, err
}

// ListWarehouses lists warehouses.
func (s *Service) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Warehouse, error) { return v.ListWarehouses(), nil })
}

// ListCustomers lists customers.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Customer, error) { return v.ListCustomers(), nil })
}

// ListGasTypes lists gas types.
func (s *Service) ListGasTypes(ctx context.Context) ([]domain.GasType, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.GasType, error) { return v.ListGasTypes(), nil })
}

// ListProperties lists cylinder property profiles.
func (s *Service) ListProperties(ctx context.Context) ([]domain.CylinderProperty, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.CylinderProperty, error) { return v.ListProperties(), nil })
}

// ListProducts lists products.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Product, error) { return v.ListProducts(), nil })
}

// ListSuppliers lists suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Supplier, error) { return v.ListSuppliers(), nil })
}

// ListDrivers lists drivers.
func (s *Service) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	return query(ctx, s, func(v domain.TransactionView) ([]domain.Driver, error) { return v.ListDrivers(), nil })
}

// GetCustomer returns a customer by id.
func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return query(ctx, s, func(v domain.TransactionView) (domain.Customer, error) {
		c, ok := v.FindCustomer(id)
		if !ok {
			return domain.Customer{}, domain.NotFoundError{Entity: domain.EntityCustomer, ID: id}
		}
		return c, nil
	})
}
