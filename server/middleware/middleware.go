package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teilomillet/assure/config"
)

// RequestTimer measures request processing time and reports it in the
// X-Response-Time header. The header is stamped when the status line is
// written, since headers cannot change afterwards.
func RequestTimer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &timingWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r)
		if !tw.wroteHeader {
			tw.stamp()
		}
	})
}

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (tw *timingWriter) stamp() {
	tw.wroteHeader = true
	tw.Header().Set("X-Response-Time", time.Since(tw.start).String())
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		tw.stamp()
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.stamp()
	}
	return tw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (tw *timingWriter) Unwrap() http.ResponseWriter { return tw.ResponseWriter }

// CORS handles Cross-Origin Resource Sharing according to cfg.
//
// A "*" origin combined with credentials reflects the request Origin, since
// browsers reject a literal "*" on credentialed requests. A "*" method or
// header list reflects what the preflight asked for. Preflight requests are
// answered with 204 without reaching next.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowAllOrigins := contains(cfg.AllowedOrigins, "*")
	allowAllMethods := len(cfg.AllowedMethods) == 0 || contains(cfg.AllowedMethods, "*")
	allowAllHeaders := contains(cfg.AllowedHeaders, "*")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	originAllowed := func(origin string) bool {
		if allowAllOrigins {
			return true
		}
		for _, o := range cfg.AllowedOrigins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")

			if !originAllowed(origin) {
				if preflight {
					http.Error(w, "Disallowed CORS origin", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if allowAllOrigins && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Response-Time")
				next.ServeHTTP(w, r)
				return
			}

			if allowAllMethods {
				h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
			} else {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if requested := r.Header.Get("Access-Control-Request-Headers"); allowAllHeaders && requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
				h.Add("Vary", "Access-Control-Request-Headers")
			} else if !allowAllHeaders && headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
