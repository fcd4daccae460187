// Package session carries the per-request storefront session: the resolved
// country and region and the cart id. It replaces ambient global state with
// a value threaded through request handling.
//
// State is read from the country_code and cart_id cookies, or from the
// Storefront-Session header (an RFC 8941 dictionary) for cookieless
// clients. Writes go back out as cookies and as the same header.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront-gateway/internal/model"
)

const (
	// CountryCookie persists the selected country code.
	CountryCookie = "country_code"

	// CartCookie persists the cart id.
	CartCookie = "cart_id"

	// Header carries session state for clients without cookies.
	// Format: country="de", cart="cart_01" (RFC 8941 Dictionary).
	Header = "Storefront-Session"

	// CountryMaxAge is the country cookie lifetime, refreshed on every write.
	CountryMaxAge = 365 * 24 * time.Hour

	// DefaultCartMaxAge is the cart cookie lifetime unless configured.
	DefaultCartMaxAge = 30 * 24 * time.Hour
)

// Options configures cookie writes.
type Options struct {
	CartMaxAge time.Duration
	Secure     bool
}

// Session is the state of one storefront visitor for one request.
// The Resolver is the only writer of the country; the cart manager is the
// only writer of the cart id.
type Session struct {
	mu          sync.RWMutex
	countryCode string
	regionID    string
	cartID      string

	// persistedCountry is what the client sent, before resolution.
	persistedCountry string

	w    http.ResponseWriter
	opts Options
}

// New builds a session outside of HTTP handling, for the CLI and tests.
// countryCode is treated as the persisted selection.
func New(countryCode, cartID string) *Session {
	return &Session{
		persistedCountry: normalize(countryCode),
		cartID:           strings.TrimSpace(cartID),
		opts:             Options{CartMaxAge: DefaultCartMaxAge},
	}
}

// FromRequest reads session state from r. Header values override cookies.
// A malformed header is ignored in favor of the cookies.
func FromRequest(w http.ResponseWriter, r *http.Request, opts Options) *Session {
	if opts.CartMaxAge <= 0 {
		opts.CartMaxAge = DefaultCartMaxAge
	}
	s := &Session{w: w, opts: opts}

	if c, err := r.Cookie(CountryCookie); err == nil {
		s.persistedCountry = normalize(c.Value)
	}
	if c, err := r.Cookie(CartCookie); err == nil {
		s.cartID = strings.TrimSpace(c.Value)
	}

	if raw := r.Header.Get(Header); raw != "" {
		if country, cart, err := ParseHeader(raw); err == nil {
			if country != "" {
				s.persistedCountry = normalize(country)
			}
			if cart != "" {
				s.cartID = cart
			}
		}
	}
	return s
}

// PersistedCountry returns the country code the client carried in, if any.
func (s *Session) PersistedCountry() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistedCountry
}

// CountryCode returns the resolved country code, or "" before resolution.
func (s *Session) CountryCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countryCode
}

// RegionID returns the resolved region id, or "" before resolution.
func (s *Session) RegionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regionID
}

// CartID returns the cart id, or "" when no cart has been created.
func (s *Session) CartID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartID
}

// HasCart reports whether a cart id is present.
func (s *Session) HasCart() bool {
	return s.CartID() != ""
}

// SetCountry sets the current country and region and persists the country
// code. The cookie is rewritten on every call so its expiry is refreshed.
func (s *Session) SetCountry(c model.Country) {
	s.mu.Lock()
	s.countryCode = normalize(c.ISO2)
	s.regionID = c.RegionID
	s.persistedCountry = s.countryCode
	s.mu.Unlock()

	s.writeCookie(CountryCookie, s.CountryCode(), CountryMaxAge)
	s.writeHeader()
}

// SetCartID replaces the cart id and persists it.
func (s *Session) SetCartID(id string) {
	s.mu.Lock()
	s.cartID = id
	s.mu.Unlock()

	s.writeCookie(CartCookie, id, s.opts.CartMaxAge)
	s.writeHeader()
}

func (s *Session) writeCookie(name, value string, maxAge time.Duration) {
	if s.w == nil {
		return
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: name == CartCookie,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Session) writeHeader() {
	if s.w == nil {
		return
	}
	value, err := FormatHeader(s.CountryCode(), s.CartID())
	if err != nil || value == "" {
		return
	}
	s.w.Header().Set(Header, value)
}

// ParseHeader extracts the country and cart members of a Storefront-Session
// header. Missing members are returned as "".
//
// Examples:
//   - country="de"                 → de, ""
//   - country="de", cart="cart_01" → de, cart_01
func ParseHeader(header string) (country, cart string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", errors.New("empty Storefront-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", "", fmt.Errorf("invalid Storefront-Session header: %w", err)
	}

	if country, err = stringMember(dict, "country"); err != nil {
		return "", "", err
	}
	if cart, err = stringMember(dict, "cart"); err != nil {
		return "", "", err
	}
	return country, cart, nil
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	switch v := item.Value.(type) {
	case string:
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// FormatHeader serializes session state as a Storefront-Session value.
// Empty members are omitted; both empty yields "".
func FormatHeader(country, cart string) (string, error) {
	dict := httpsfv.NewDictionary()
	if country != "" {
		dict.Add("country", httpsfv.NewItem(country))
	}
	if cart != "" {
		dict.Add("cart", httpsfv.NewItem(cart))
	}
	if len(dict.Names()) == 0 {
		return "", nil
	}
	return httpsfv.Marshal(dict)
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// Middleware attaches a Session to every request.
func Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := FromRequest(w, r, opts)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
