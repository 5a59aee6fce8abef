package middleware

import (
	"fmt"
	"net/http"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/observability"
)

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// Chain folds middlewares into one; the first argument sees the request first.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Recover turns a handler panic into a 500 and a log line carrying the
// request ids. A panic after the event stream started only ends that stream.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}
				observability.FromContext(r.Context()).Error("handler panicked",
					observability.String("path", r.URL.Path),
					observability.String("panic", fmt.Sprint(rec)))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// BuildMiddlewareChain is the relay's chain: CORS, then request tracing,
// then panic recovery closest to the routes so its log line carries ids.
func BuildMiddlewareChain(corsConfig *config.CORSConfig) Middleware {
	return Chain(
		CORS(corsConfig),
		Trace(),
		Recover(),
	)
}
