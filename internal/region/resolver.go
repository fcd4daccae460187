// Package region resolves the current country and region for each
// storefront navigation.
//
// Candidate countries are looked up in the backend's region list:
// the configured default, the country in the URL, and the one persisted from
// an earlier visit. The persisted country wins over the URL; an unknown URL
// country falls back to the default. Any disagreement between the chosen
// country and the URL prefix ends in a redirect.
package region

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/model"
)

// Outcome labels how a country was chosen.
type Outcome string

const (
	OutcomePersisted         Outcome = "persisted"
	OutcomePersistedRedirect Outcome = "persisted_redirect"
	OutcomeRequested         Outcome = "requested"
	OutcomeDefaultRedirect   Outcome = "default_redirect"
	OutcomeDefault           Outcome = "default"
)

// RegionLister returns the backend's current region list.
type RegionLister interface {
	Regions(ctx context.Context) ([]model.Region, error)
}

// RegionInvalidator is implemented by listers that cache the region list.
// A list that fails validation is dropped so a corrected backend is picked
// up on the next navigation rather than after the cache TTL.
type RegionInvalidator interface {
	InvalidateRegions(ctx context.Context) error
}

// Navigation is the input to one resolution.
type Navigation struct {
	Path          string // request path, e.g. /fr/store
	RawQuery      string // preserved on redirect
	RequestedCode string // country code from the URL's first segment, if any
	PersistedCode string // country code persisted from an earlier visit, if any
}

// Decision is the result of one resolution.
type Decision struct {
	Country  model.Country
	Redirect string // target path when the URL must change; "" otherwise
	Outcome  Outcome
}

// Resolver decides the current country. Safe for concurrent use.
type Resolver struct {
	regions        RegionLister
	defaultCountry string
	logger         *slog.Logger
}

// NewResolver creates a Resolver. defaultCountry is validated against the
// region list on every resolution, since the list can change.
func NewResolver(regions RegionLister, defaultCountry string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		regions:        regions,
		defaultCountry: NormalizeCode(defaultCountry),
		logger:         logger,
	}
}

// Resolve picks the current country for nav.
//
// An empty region list, or a default country missing from it, is a
// configuration error: no redirect to a malformed path is ever produced.
// A persisted country no longer present in the list is treated as absent.
func (r *Resolver) Resolve(ctx context.Context, nav Navigation) (*Decision, error) {
	lookup, def, err := r.lookup(ctx)
	if err != nil {
		metrics.RecordResolverDecision("error")
		return nil, err
	}

	requested := NormalizeCode(nav.RequestedCode)
	persisted := NormalizeCode(nav.PersistedCode)

	var d *Decision
	if pc, ok := lookup[persisted]; ok {
		d = &Decision{Country: pc, Outcome: OutcomePersisted}
		if pc.ISO2 != requested {
			d.Outcome = OutcomePersistedRedirect
			d.Redirect = RedirectPath(nav.Path, nav.RawQuery, nav.RequestedCode, pc.ISO2)
		}
	} else if rc, ok := lookup[requested]; ok {
		d = &Decision{Country: rc, Outcome: OutcomeRequested}
	} else {
		d = &Decision{
			Country:  def,
			Outcome:  OutcomeDefaultRedirect,
			Redirect: RedirectPath(nav.Path, nav.RawQuery, nav.RequestedCode, def.ISO2),
		}
	}

	if persisted != "" && d.Outcome != OutcomePersisted && d.Outcome != OutcomePersistedRedirect {
		r.logger.Debug("persisted country not in region list",
			slog.String("country", persisted),
		)
	}

	metrics.RecordResolverDecision(string(d.Outcome))
	return d, nil
}

// Current picks the current country for callers without a URL to redirect
// (API routes, MCP tools, CLI): the persisted country when known, else the
// default.
func (r *Resolver) Current(ctx context.Context, persistedCode string) (model.Country, error) {
	lookup, def, err := r.lookup(ctx)
	if err != nil {
		metrics.RecordResolverDecision("error")
		return model.Country{}, err
	}
	if pc, ok := lookup[NormalizeCode(persistedCode)]; ok {
		metrics.RecordResolverDecision(string(OutcomePersisted))
		return pc, nil
	}
	metrics.RecordResolverDecision(string(OutcomeDefault))
	return def, nil
}

// lookup fetches the region list and returns it keyed by country code,
// along with the default country.
func (r *Resolver) lookup(ctx context.Context) (map[string]model.Country, model.Country, error) {
	regions, err := r.regions.Regions(ctx)
	if err != nil {
		return nil, model.Country{}, fmt.Errorf("fetching regions: %w", err)
	}

	lookup := make(map[string]model.Country)
	for _, c := range model.CountriesFromRegions(regions) {
		code := NormalizeCode(c.ISO2)
		if code == "" {
			continue
		}
		c.ISO2 = code
		if _, dup := lookup[code]; !dup {
			lookup[code] = c
		}
	}

	if len(lookup) == 0 {
		r.dropRegions(ctx)
		return nil, model.Country{}, model.NewConfigError("the commerce backend returned no countries in any region")
	}
	def, ok := lookup[r.defaultCountry]
	if !ok {
		r.dropRegions(ctx)
		return nil, model.Country{}, model.NewConfigError(fmt.Sprintf("default country %q is not in any region", r.defaultCountry))
	}
	return lookup, def, nil
}

func (r *Resolver) dropRegions(ctx context.Context) {
	inv, ok := r.regions.(RegionInvalidator)
	if !ok {
		return
	}
	if err := inv.InvalidateRegions(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("region list invalidation failed", slog.Any("error", err))
	}
}

// NormalizeCode returns code as a lower-case ISO 3166-1 alpha-2 country
// code, or "" when it is not one.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if !IsCountrySegment(code) {
		return ""
	}
	reg, err := language.ParseRegion(code)
	if err != nil || !reg.IsCountry() {
		return ""
	}
	return strings.ToLower(code)
}

// IsCountrySegment reports whether a path segment occupies the country slot:
// exactly two ASCII letters.
func IsCountrySegment(seg string) bool {
	if len(seg) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := seg[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// FirstSegment returns the first segment of path.
func FirstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// RedirectPath builds the path for code. When the path's first segment is
// the requested country slot it is replaced; otherwise code is prefixed.
// The query string is preserved.
//
// Examples:
//   - /fr/store?page=2, requested fr, code de → /de/store?page=2
//   - /store, no requested code, code fr      → /fr/store
//   - /, code fr                              → /fr
func RedirectPath(path, rawQuery, requested, code string) string {
	rest := strings.TrimPrefix(path, "/")
	if requested != "" {
		first := FirstSegment(path)
		if strings.EqualFold(first, requested) {
			rest = strings.TrimPrefix(rest, first)
			rest = strings.TrimPrefix(rest, "/")
		}
	}

	target := "/" + url.PathEscape(code)
	if rest != "" {
		target += "/" + rest
	}
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
