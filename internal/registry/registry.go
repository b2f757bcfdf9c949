package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"parkfee-bot/internal/domain"
)

// ParamGetter reads a single parameter value (SSM Parameter Store).
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Registry maps city IDs to their query endpoints. It is immutable once
// built.
type Registry struct {
	byID  map[string]domain.CityEndpoint
	order []string
}

// New validates endpoints and builds a Registry keeping their order.
func New(endpoints ...domain.CityEndpoint) (*Registry, error) {
	r := &Registry{byID: make(map[string]domain.CityEndpoint, len(endpoints))}
	for _, ep := range endpoints {
		ep.ID = strings.TrimSpace(ep.ID)
		ep.URLTemplate = strings.TrimSpace(ep.URLTemplate)
		if err := validate(ep); err != nil {
			return nil, err
		}
		if _, dup := r.byID[ep.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate city id %q", ep.ID)
		}
		r.byID[ep.ID] = ep
		r.order = append(r.order, ep.ID)
	}
	return r, nil
}

func validate(ep domain.CityEndpoint) error {
	if ep.ID == "" {
		return errors.New("registry: city id must not be empty")
	}
	if !strings.Contains(ep.URLTemplate, "{plate}") {
		return fmt.Errorf("registry: city %q: url template must contain {plate}", ep.ID)
	}
	u, err := url.Parse(strings.NewReplacer("{plate}", "x", "{type}", "x").Replace(ep.URLTemplate))
	if err != nil {
		return fmt.Errorf("registry: city %q: parse url template: %w", ep.ID, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("registry: city %q: url template must be an absolute http(s) URL", ep.ID)
	}
	return nil
}

// Lookup returns the endpoint for id.
func (r *Registry) Lookup(id string) (domain.CityEndpoint, bool) {
	ep, ok := r.byID[id]
	return ep, ok
}

// IDs lists city IDs in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len reports how many cities are registered.
func (r *Registry) Len() int {
	return len(r.order)
}

// Merge returns a new Registry where overrides replace same-ID entries and
// new IDs are appended.
func (r *Registry) Merge(overrides ...domain.CityEndpoint) (*Registry, error) {
	merged := make([]domain.CityEndpoint, 0, len(r.order)+len(overrides))
	replaced := make(map[string]domain.CityEndpoint, len(overrides))
	for _, ep := range overrides {
		replaced[strings.TrimSpace(ep.ID)] = ep
	}
	for _, id := range r.order {
		if ep, ok := replaced[id]; ok {
			merged = append(merged, ep)
			delete(replaced, id)
			continue
		}
		merged = append(merged, r.byID[id])
	}
	for _, ep := range overrides {
		if _, pending := replaced[strings.TrimSpace(ep.ID)]; pending {
			merged = append(merged, ep)
			delete(replaced, strings.TrimSpace(ep.ID))
		}
	}
	return New(merged...)
}

// LoadOverrides reads a JSON array of endpoints stored under name.
func LoadOverrides(ctx context.Context, params ParamGetter, name string) ([]domain.CityEndpoint, error) {
	if params == nil {
		return nil, errors.New("registry: param getter must not be nil")
	}
	raw, err := params.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("registry: load overrides: %w", err)
	}
	var eps []domain.CityEndpoint
	if err := json.Unmarshal([]byte(raw), &eps); err != nil {
		return nil, fmt.Errorf("registry: decode overrides: %w", err)
	}
	return eps, nil
}
