// Package leads validates quote requests and hands them to delivery sinks.
package leads

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrInvalidRequest is matched by every validation failure.
var ErrInvalidRequest = errors.New("invalid quote request")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

// ValidationError lists every problem found in a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Request is the /send-quote body. Pointer fields distinguish a missing
// value from a zero one.
type Request struct {
	Filename       *string  `json:"filename"`
	Technology     *string  `json:"technology"`
	Material       *string  `json:"material"`
	Finish         *string  `json:"finish"`
	Delivery       *string  `json:"delivery"`
	Quantity       *int     `json:"quantity"`
	EstimatedPrice *float64 `json:"estimated_price"`

	Name    *string `json:"name"`
	Company *string `json:"company"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`

	SurfaceStructure *string `json:"surface_structure"`
	ColorRequest     *string `json:"color_request"`
	ApplicationUse   *string `json:"application_use"`
	AdditionalNotes  *string `json:"additional_notes"`
}

// DecodeRequest reads and validates a JSON request body.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Request{}, &ValidationError{Fields: []FieldError{{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			}}}
		}
		return Request{}, &ValidationError{Fields: []FieldError{{Message: "malformed JSON body: " + err.Error()}}}
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks that every required field is present.
func (r Request) Validate() error {
	required := []struct {
		name    string
		present bool
	}{
		{"filename", r.Filename != nil},
		{"technology", r.Technology != nil},
		{"material", r.Material != nil},
		{"finish", r.Finish != nil},
		{"delivery", r.Delivery != nil},
		{"quantity", r.Quantity != nil},
		{"estimated_price", r.EstimatedPrice != nil},
		{"name", r.Name != nil},
		{"email", r.Email != nil},
		{"phone", r.Phone != nil},
	}

	var missing []FieldError
	for _, f := range required {
		if !f.present {
			missing = append(missing, FieldError{Field: f.name, Message: "field required"})
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Lead is an accepted quote request as delivered to sinks.
type Lead struct {
	ID              string    `json:"id"`
	ReceivedAt      time.Time `json:"received_at"`
	CatalogRevision string    `json:"catalog_revision,omitempty"`

	Filename       string  `json:"filename"`
	Technology     string  `json:"technology"`
	Material       string  `json:"material"`
	Finish         string  `json:"finish"`
	Delivery       string  `json:"delivery"`
	Quantity       int     `json:"quantity"`
	EstimatedPrice float64 `json:"estimated_price"`

	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`

	SurfaceStructure string `json:"surface_structure,omitempty"`
	ColorRequest     string `json:"color_request,omitempty"`
	ApplicationUse   string `json:"application_use,omitempty"`
	AdditionalNotes  string `json:"additional_notes,omitempty"`
}

// Lead converts a validated request. Missing optional fields become "".
func (r Request) Lead(id string, receivedAt time.Time, catalogRevision string) Lead {
	return Lead{
		ID:               id,
		ReceivedAt:       receivedAt.UTC(),
		CatalogRevision:  catalogRevision,
		Filename:         deref(r.Filename),
		Technology:       deref(r.Technology),
		Material:         deref(r.Material),
		Finish:           deref(r.Finish),
		Delivery:         deref(r.Delivery),
		Quantity:         derefInt(r.Quantity),
		EstimatedPrice:   derefFloat(r.EstimatedPrice),
		Name:             deref(r.Name),
		Company:          deref(r.Company),
		Email:            deref(r.Email),
		Phone:            deref(r.Phone),
		SurfaceStructure: deref(r.SurfaceStructure),
		ColorRequest:     deref(r.ColorRequest),
		ApplicationUse:   deref(r.ApplicationUse),
		AdditionalNotes:  deref(r.AdditionalNotes),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
