package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"wbtrack-rest-api/pkg/apierror"
)

// Recovery is a middleware that recovers from panics and answers 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Printf("PANIC: %v request_id=%s\n%s", err, GetRequestID(r.Context()), debug.Stack())
				writeError(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
