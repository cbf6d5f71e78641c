package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a venue row.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
	// StatusLocked freezes a row; the selector never picks it.
	StatusLocked Status = "LOCKED"
)

// Eligible reports whether a row with this status may be selected.
func (s Status) Eligible() bool {
	switch Status(strings.ToUpper(string(s))) {
	case StatusDone, StatusLocked:
		return false
	}
	return true
}

// Venue is one warehouse row: identity, context and the target fields.
type Venue struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
	Category string `json:"category,omitempty"`
	Status   Status `json:"status,omitempty"`

	AvgTicketPrice   *float64 `json:"avg_ticket_price,omitempty"`
	Capacity         *int64   `json:"capacity,omitempty"`
	TicketVendor     *string  `json:"ticket_vendor,omitempty"`
	AnnualRevenue    *float64 `json:"annual_revenue,omitempty"`
	TicketingRevenue *float64 `json:"ticketing_revenue,omitempty"`

	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Has reports whether the field holds a usable value.
func (v *Venue) Has(f Field) bool {
	switch f {
	case FieldAvgTicketPrice:
		return v.AvgTicketPrice != nil
	case FieldCapacity:
		return v.Capacity != nil
	case FieldTicketVendor:
		return v.TicketVendor != nil && strings.TrimSpace(*v.TicketVendor) != ""
	case FieldAnnualRevenue:
		return v.AnnualRevenue != nil
	case FieldTicketingRevenue:
		return v.TicketingRevenue != nil
	}
	return false
}

// Value returns the field value, or nil when it is missing.
func (v *Venue) Value(f Field) any {
	if !v.Has(f) {
		return nil
	}
	switch f {
	case FieldAvgTicketPrice:
		return *v.AvgTicketPrice
	case FieldCapacity:
		return *v.Capacity
	case FieldTicketVendor:
		return *v.TicketVendor
	case FieldAnnualRevenue:
		return *v.AnnualRevenue
	case FieldTicketingRevenue:
		return *v.TicketingRevenue
	}
	return nil
}

// Set stores a normalized value into the field. It returns false when the
// value does not pass NormalizeValue.
func (v *Venue) Set(f Field, val any) bool {
	n, ok := NormalizeValue(f, val)
	if !ok {
		return false
	}
	switch f {
	case FieldAvgTicketPrice:
		x := n.(float64)
		v.AvgTicketPrice = &x
	case FieldCapacity:
		x := n.(int64)
		v.Capacity = &x
	case FieldTicketVendor:
		x := n.(string)
		v.TicketVendor = &x
	case FieldAnnualRevenue:
		x := n.(float64)
		v.AnnualRevenue = &x
	case FieldTicketingRevenue:
		x := n.(float64)
		v.TicketingRevenue = &x
	default:
		return false
	}
	return true
}

// Missing returns the target fields that are still empty, in target order.
func (v *Venue) Missing() []Field {
	var out []Field
	for _, f := range TargetFields {
		if !v.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Complete reports whether every target field is filled.
func (v *Venue) Complete() bool {
	return len(v.Missing()) == 0
}

// Known returns the filled target fields as a map, for prompts.
func (v *Venue) Known() map[Field]any {
	out := make(map[Field]any)
	for _, f := range TargetFields {
		if val := v.Value(f); val != nil {
			out[f] = val
		}
	}
	return out
}

// Clone returns a copy whose pointer fields do not alias v.
func (v *Venue) Clone() *Venue {
	c := *v
	if v.AvgTicketPrice != nil {
		x := *v.AvgTicketPrice
		c.AvgTicketPrice = &x
	}
	if v.Capacity != nil {
		x := *v.Capacity
		c.Capacity = &x
	}
	if v.TicketVendor != nil {
		x := *v.TicketVendor
		c.TicketVendor = &x
	}
	if v.AnnualRevenue != nil {
		x := *v.AnnualRevenue
		c.AnnualRevenue = &x
	}
	if v.TicketingRevenue != nil {
		x := *v.TicketingRevenue
		c.TicketingRevenue = &x
	}
	if v.UpdatedAt != nil {
		x := *v.UpdatedAt
		c.UpdatedAt = &x
	}
	return &c
}

// Location joins city and country for prompts and search queries.
func (v *Venue) Location() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(v.City); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(v.Country); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
