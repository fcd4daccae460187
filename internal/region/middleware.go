package region

import (
	"net/http"

	"storefront-gateway/internal/session"
)

// ErrorWriter renders a resolution failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware resolves the country for page navigations. A redirect ends the
// request; no later handler runs. On success the country is written to the
// session and the request continues.
func (r *Resolver) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := sessionFor(w, req)

			requested := ""
			if seg := FirstSegment(req.URL.Path); IsCountrySegment(seg) {
				requested = seg
			}

			d, err := r.Resolve(req.Context(), Navigation{
				Path:          req.URL.Path,
				RawQuery:      req.URL.RawQuery,
				RequestedCode: requested,
				PersistedCode: sess.PersistedCountry(),
			})
			if err != nil {
				onError(w, req, err)
				return
			}

			sess.SetCountry(d.Country)
			if d.Redirect != "" {
				http.Redirect(w, req, d.Redirect, http.StatusFound)
				return
			}

			next.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), sess)))
		})
	}
}

// Attach resolves the country for non-navigation requests (API, MCP)
// without redirecting.
func (r *Resolver) Attach(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := sessionFor(w, req)

			country, err := r.Current(req.Context(), sess.PersistedCountry())
			if err != nil {
				onError(w, req, err)
				return
			}
			sess.SetCountry(country)

			next.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), sess)))
		})
	}
}

func sessionFor(w http.ResponseWriter, req *http.Request) *session.Session {
	if s := session.FromContext(req.Context()); s != nil {
		return s
	}
	return session.FromRequest(w, req, session.Options{})
}
