package billing

import (
	"fmt"
	"strings"
)

// UsageParams carries the runtime request parameters a pricing rule may need
// before the work runs (requested duration, resolution, batch size).
type UsageParams struct {
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	Count           int    `json:"count,omitempty"`
}

// CompletionMetrics carries the actual output properties reported with a
// completion signal. For deferred-cost features this is what the final price
// is computed from.
type CompletionMetrics struct {
	DurationSeconds int `json:"duration_seconds,omitempty"`
	OutputCount     int `json:"output_count,omitempty"`
}

// Pricing computes the credit cost of one invocation.
type Pricing interface {
	// Estimate prices the work before it runs.
	Estimate(p UsageParams) int64

	// Final prices the work once completion metrics are known. Implementations
	// fall back to the estimate when metrics carry nothing useful.
	Final(estimated int64, m *CompletionMetrics) int64

	// Dynamic reports whether the final cost can differ from the estimate.
	Dynamic() bool
}

// FixedCost charges a flat number of credits per invocation.
type FixedCost int64

// Estimate returns the flat cost.
func (f FixedCost) Estimate(UsageParams) int64 { return int64(f) }

// Final returns the flat cost regardless of metrics.
func (f FixedCost) Final(int64, *CompletionMetrics) int64 { return int64(f) }

// Dynamic reports false; fixed cost never changes at completion.
func (f FixedCost) Dynamic() bool { return false }

// PerSecondCost charges by seconds of produced media. The estimate uses the
// requested duration, defaulting to DefaultSeconds; the final cost uses the
// duration the provider actually produced.
type PerSecondCost struct {
	CreditsPerSecond int64
	DefaultSeconds   int
}

// Estimate prices the requested duration.
func (p PerSecondCost) Estimate(params UsageParams) int64 {
	secs := params.DurationSeconds
	if secs <= 0 {
		secs = p.DefaultSeconds
	}
	return p.CreditsPerSecond * int64(secs)
}

// Final prices the produced duration, falling back to the estimate.
func (p PerSecondCost) Final(estimated int64, m *CompletionMetrics) int64 {
	if m == nil || m.DurationSeconds <= 0 {
		return estimated
	}
	return p.CreditsPerSecond * int64(m.DurationSeconds)
}

// Dynamic reports true.
func (p PerSecondCost) Dynamic() bool { return true }

// DynamicCost adapts arbitrary pricing functions.
type DynamicCost struct {
	EstimateFn func(p UsageParams) int64
	FinalFn    func(m *CompletionMetrics) int64
}

// Estimate delegates to EstimateFn.
func (d DynamicCost) Estimate(p UsageParams) int64 { return d.EstimateFn(p) }

// Final delegates to FinalFn, falling back to the estimate.
func (d DynamicCost) Final(estimated int64, m *CompletionMetrics) int64 {
	if m == nil {
		return estimated
	}
	return d.FinalFn(m)
}

// Dynamic reports true.
func (d DynamicCost) Dynamic() bool { return true }

// Feature is one billable feature's configuration.
type Feature struct {
	Name      string
	FreeQuota int64
	Pricing   Pricing

	// Synchronous marks features whose cost is final at submission and whose
	// work completes inline; the gate may debit them immediately instead of
	// going through the deferred task protocol.
	Synchronous bool
}

// Catalog is the read-only feature lookup. A missing feature name is a
// configuration error, surfaced at startup, never per request.
type Catalog struct {
	features map[string]*Feature
}

// NewCatalog builds and validates a catalog.
func NewCatalog(features ...*Feature) (*Catalog, error) {
	c := &Catalog{features: make(map[string]*Feature, len(features))}
	for _, f := range features {
		if err := validateFeature(f); err != nil {
			return nil, err
		}
		if _, ok := c.features[f.Name]; ok {
			return nil, fmt.Errorf("duplicate feature %q", f.Name)
		}
		c.features[f.Name] = f
	}
	return c, nil
}

func validateFeature(f *Feature) error {
	if f == nil || strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("feature name must not be empty")
	}
	if f.FreeQuota < 0 {
		return fmt.Errorf("feature %q: free quota must not be negative", f.Name)
	}
	if f.Pricing == nil {
		return fmt.Errorf("feature %q: pricing is required", f.Name)
	}
	if d, ok := f.Pricing.(DynamicCost); ok {
		if d.EstimateFn == nil || d.FinalFn == nil {
			return fmt.Errorf("feature %q: dynamic pricing needs estimate and final functions", f.Name)
		}
	}
	if p, ok := f.Pricing.(PerSecondCost); ok {
		if p.CreditsPerSecond <= 0 {
			return fmt.Errorf("feature %q: credits per second must be positive", f.Name)
		}
		if f.Synchronous {
			return fmt.Errorf("feature %q: duration-priced features cannot be synchronous", f.Name)
		}
	}
	return nil
}

// Get returns the feature configuration by name.
func (c *Catalog) Get(name string) (*Feature, error) {
	f, ok := c.features[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return f, nil
}

// Names returns all configured feature names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.features))
	for name := range c.features {
		names = append(names, name)
	}
	return names
}

// DefaultFeatures returns the compiled-in feature set, used when the
// configuration does not define one.
func DefaultFeatures() []*Feature {
	return []*Feature{
		{Name: "image.generate", FreeQuota: 3, Pricing: FixedCost(10), Synchronous: true},
		{Name: "image.upscale", FreeQuota: 0, Pricing: FixedCost(20), Synchronous: true},
		{Name: "video.generate", FreeQuota: 1, Pricing: PerSecondCost{CreditsPerSecond: 6, DefaultSeconds: 5}},
		{Name: "video.extend", FreeQuota: 0, Pricing: PerSecondCost{CreditsPerSecond: 6, DefaultSeconds: 5}},
	}
}
