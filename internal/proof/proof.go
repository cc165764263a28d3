// Package proof validates the evidence users attach to task submissions.
// Each task validation type has one Validator; the Registry looks them up.
package proof

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"taskkash/internal/model"
)

// Limits applied to every proof.
const (
	MaxScreenshots = 5
	MaxNotesLength = 1000
)

// FieldError reports a rejected proof field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validator checks a proof against the task it is submitted for.
type Validator interface {
	// Type returns the task validation type the validator handles.
	Type() string
	Validate(task *model.Task, p model.Proof) error
}

// Registry manages validators keyed by validation type.
type Registry struct {
	validators map[string]Validator
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register adds a validator, replacing any existing one for the same type.
func (r *Registry) Register(v Validator) error {
	if v == nil {
		return fmt.Errorf("cannot register nil validator")
	}
	if v.Type() == "" {
		return fmt.Errorf("validator type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[v.Type()] = v
	return nil
}

// Get retrieves the validator for a validation type.
func (r *Registry) Get(validationType string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[validationType]
	return v, ok
}

// Types returns the registered validation types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.validators))
	for t := range r.validators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate runs the common checks and then the task type's validator.
func (r *Registry) Validate(task *model.Task, p model.Proof) error {
	v, ok := r.Get(task.ValidationType)
	if !ok {
		return fmt.Errorf("no validator for validation type %q", task.ValidationType)
	}
	if len(p.Notes) > MaxNotesLength {
		return &FieldError{Field: "notes", Message: fmt.Sprintf("must be at most %d characters", MaxNotesLength)}
	}
	if len(p.URLs) > MaxScreenshots {
		return &FieldError{Field: "proofUrls", Message: fmt.Sprintf("at most %d urls allowed", MaxScreenshots)}
	}
	for _, u := range p.URLs {
		if _, err := parseHTTPURL(u); err != nil {
			return &FieldError{Field: "proofUrls", Message: err.Error()}
		}
	}
	return v.Validate(task, p)
}

// Default returns a registry with the built-in validators.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(Manual{})
	_ = r.Register(Screenshot{})
	_ = r.Register(Link{})
	return r
}

// Manual accepts any non-empty proof; an admin judges it.
type Manual struct{}

func (Manual) Type() string { return model.ValidationManual }

func (Manual) Validate(_ *model.Task, p model.Proof) error {
	if strings.TrimSpace(p.Notes) == "" && strings.TrimSpace(p.Link) == "" && len(p.URLs) == 0 {
		return &FieldError{Field: "notes", Message: "describe what you did or attach a link"}
	}
	if p.Link != "" {
		if _, err := parseHTTPURL(p.Link); err != nil {
			return &FieldError{Field: "proofLink", Message: err.Error()}
		}
	}
	return nil
}

// Screenshot requires at least one uploaded image url.
type Screenshot struct{}

func (Screenshot) Type() string { return model.ValidationScreenshot }

func (Screenshot) Validate(_ *model.Task, p model.Proof) error {
	if len(p.URLs) == 0 {
		return &FieldError{Field: "proofUrls", Message: "at least one screenshot is required"}
	}
	return nil
}

// Link requires a url that points at one of the task's hosts.
type Link struct{}

func (Link) Type() string { return model.ValidationLink }

func (Link) Validate(task *model.Task, p model.Proof) error {
	if strings.TrimSpace(p.Link) == "" {
		return &FieldError{Field: "proofLink", Message: "is required"}
	}
	u, err := parseHTTPURL(p.Link)
	if err != nil {
		return &FieldError{Field: "proofLink", Message: err.Error()}
	}
	if len(task.Links) == 0 {
		return nil
	}

	host := normalizeHost(u.Hostname())
	for _, l := range task.Links {
		tu, err := url.Parse(l)
		if err != nil {
			continue
		}
		if normalizeHost(tu.Hostname()) == host {
			return nil
		}
	}
	return &FieldError{Field: "proofLink", Message: "must point to the task's site"}
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%q is not a valid url", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q must use http or https", raw)
	}
	return u, nil
}

func normalizeHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}
