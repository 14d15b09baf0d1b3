// Package record provides the generic document model and repositories for
// the tracked administrative resources.
package record

import (
	"encoding/json"
	"time"
)

// SerialMode selects how a resource type's human-readable identifier is
// produced.
type SerialMode int

const (
	// SerialNone: the identifier field, if any, is supplied by the client.
	SerialNone SerialMode = iota
	// SerialSequential: day-scoped zero-padded sequence (e.g. PO-250828001).
	SerialSequential
	// SerialTimestamp: second-resolution timestamp (e.g. 2025_08_28_14_03_22).
	SerialTimestamp
)

// Type describes one tracked resource type. Name doubles as the URL route
// segment.
type Type struct {
	Name         string
	SerialField  string // field holding the human-readable identifier; "" if none
	SerialPrefix string
	SerialDated  bool // whether the prefix is followed by the YYMMDD civil date
	SerialWidth  int  // zero-padded suffix width
	Mode         SerialMode
}

// Registry of tracked resource types, keyed by route segment. Mirrors the
// route table: every segment here gets CRUD handlers and audit coverage.
var Registry = map[string]Type{
	"vouchers":         {Name: "vouchers", SerialField: "voucherNumber"},
	"assets":           {Name: "assets", SerialField: "assetId"},
	"incomings":        {Name: "incomings", SerialField: "identifier", Mode: SerialTimestamp},
	"outgoings":        {Name: "outgoings", SerialField: "identifier", SerialPrefix: "", SerialDated: true, SerialWidth: 2, Mode: SerialSequential},
	"deathcases":       {Name: "deathcases", SerialField: "identifier", SerialPrefix: "D-", SerialDated: true, SerialWidth: 3, Mode: SerialSequential},
	"prisoncases":      {Name: "prisoncases", SerialField: "identifier", SerialPrefix: "P", SerialDated: false, SerialWidth: 3, Mode: SerialSequential},
	"purchaseorders":   {Name: "purchaseorders", SerialField: "purchasingId", SerialPrefix: "PO-", SerialDated: true, SerialWidth: 3, Mode: SerialSequential},
	"collectionorders": {Name: "collectionorders", SerialField: "collectingId", SerialPrefix: "CO-", SerialDated: true, SerialWidth: 3, Mode: SerialSequential},
}

// TypeFor returns the registered type for a route segment.
func TypeFor(segment string) (Type, bool) {
	t, ok := Registry[segment]
	return t, ok
}

// Record is a document of one resource type. Fields holds the
// schema-free business payload; the remaining columns are common to all
// types.
type Record struct {
	ID        string
	Type      string
	Fields    map[string]any
	FileURL   string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Serial returns the record's human-readable identifier, if its type
// declares one.
func (r *Record) Serial() string {
	t, ok := TypeFor(r.Type)
	if !ok || t.SerialField == "" {
		return ""
	}
	if v, ok := r.Fields[t.SerialField].(string); ok {
		return v
	}
	return ""
}

// SetSerial stores the human-readable identifier in the type's serial field.
func (r *Record) SetSerial(serial string) {
	t, ok := TypeFor(r.Type)
	if !ok || t.SerialField == "" {
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[t.SerialField] = serial
}

// Document flattens the record into its wire form: business fields plus
// the common envelope keys.
func (r *Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+5)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc["_id"] = r.ID
	if r.FileURL != "" {
		doc["fileUrl"] = r.FileURL
	}
	if r.CreatedBy != "" {
		doc["createdBy"] = r.CreatedBy
	}
	if !r.CreatedAt.IsZero() {
		doc["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !r.UpdatedAt.IsZero() {
		doc["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return doc
}

// MarshalJSON renders the flattened document form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// Clone returns a deep copy of the record (one level of Fields).
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return &c
}
