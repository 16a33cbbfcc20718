package memory

import (
	"encoding/json"
	"fmt"
	"strconv"

	"cylindercore/pkg/domain"
)

// Snapshot captures a point-in-time clone of the store state. Durable stores
// persist it bucket by bucket.
type Snapshot struct {
	Cylinders   map[string]domain.Cylinder             `json:"cylinders"`
	Movements   map[string][]domain.MovementRecord     `json:"movements"`
	Warehouses  map[string]domain.Warehouse            `json:"warehouses"`
	Customers   map[string]domain.Customer             `json:"customers"`
	GasTypes    map[string]domain.GasType              `json:"gas_types"`
	Properties  map[string]domain.CylinderProperty     `json:"properties"`
	Products    map[string]domain.Product              `json:"products"`
	Suppliers   map[string]domain.Supplier             `json:"suppliers"`
	Drivers     map[string]domain.Driver               `json:"drivers"`
	Loans       map[string]domain.LoanAdjustment       `json:"loans"`
	Audits      map[string]domain.AuditSession         `json:"audits"`
	Conversions map[string]domain.GasConversionRequest `json:"conversions"`
	Refills     map[string]domain.RefillOrder          `json:"refills"`
	Sequences   map[string]int                         `json:"sequences"`
}

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{
	"cylinders", "movements", "warehouses", "customers", "gas_types", "properties", "products",
	"suppliers", "drivers", "loans", "audits", "conversions", "refills", "sequences",
}

// BucketTargets maps each bucket name to the field a payload decodes into.
func (s *Snapshot) BucketTargets() map[string]any {
	return map[string]any{
		"cylinders":   &s.Cylinders,
		"movements":   &s.Movements,
		"warehouses":  &s.Warehouses,
		"customers":   &s.Customers,
		"gas_types":   &s.GasTypes,
		"properties":  &s.Properties,
		"products":    &s.Products,
		"suppliers":   &s.Suppliers,
		"drivers":     &s.Drivers,
		"loans":       &s.Loans,
		"audits":      &s.Audits,
		"conversions": &s.Conversions,
		"refills":     &s.Refills,
		"sequences":   &s.Sequences,
	}
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older binaries tolerate newer tables.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	target, ok := s.BucketTargets()[bucket]
	if !ok || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// EncodeBuckets marshals every bucket in Buckets order.
func (s *Snapshot) EncodeBuckets() ([][]byte, error) {
	targets := s.BucketTargets()
	out := make([][]byte, 0, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	s := Snapshot{
		Cylinders:   c.cylinders,
		Movements:   make(map[string][]domain.MovementRecord, len(c.movements)),
		Warehouses:  c.warehouses,
		Customers:   c.customers,
		GasTypes:    c.gasTypes,
		Properties:  c.properties,
		Products:    c.products,
		Suppliers:   c.suppliers,
		Drivers:     c.drivers,
		Loans:       make(map[string]domain.LoanAdjustment, len(c.loans)),
		Audits:      c.audits,
		Conversions: c.conversions,
		Refills:     c.refills,
		Sequences:   make(map[string]int, len(c.sequences)),
	}
	for k, v := range c.movements {
		s.Movements[k] = append([]domain.MovementRecord(nil), v...)
	}
	for k, v := range c.loans {
		s.Loans[k] = cloneLoan(v)
	}
	for year, seq := range c.sequences {
		s.Sequences[strconv.Itoa(year)] = seq
	}
	return s
}

// memoryStateFromSnapshot rebuilds state and the barcode/serial indexes.
// Malformed sequence keys are dropped.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Cylinders {
		state.cylinders[k] = cloneCylinder(v)
		state.barcodes[v.Barcode] = k
		state.serials[v.SerialNumber] = k
	}
	for k, v := range s.Movements {
		state.movements[k] = append([]domain.MovementRecord(nil), v...)
	}
	copyInto(state.warehouses, s.Warehouses)
	copyInto(state.customers, s.Customers)
	copyInto(state.gasTypes, s.GasTypes)
	copyInto(state.properties, s.Properties)
	copyInto(state.products, s.Products)
	copyInto(state.suppliers, s.Suppliers)
	copyInto(state.drivers, s.Drivers)
	for k, v := range s.Loans {
		state.loans[k] = cloneLoan(v)
	}
	for k, v := range s.Audits {
		state.audits[k] = cloneAudit(v)
	}
	for k, v := range s.Conversions {
		state.conversions[k] = cloneConversion(v)
	}
	for k, v := range s.Refills {
		state.refills[k] = cloneRefill(v)
	}
	for k, v := range s.Sequences {
		year, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		state.sequences[year] = v
	}
	return state
}

func copyInto[T any](dst, src map[string]T) {
	for k, v := range src {
		dst[k] = v
	}
}
