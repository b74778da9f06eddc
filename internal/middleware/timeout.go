package middleware

import (
	"context"
	"net/http"
	"time"
)

// WithTimeout навешивает на контекст запроса дедлайн d, если дедлайна
// ещё нет. Уже установленный (например, внешним прокси) не перекрывается.
func WithTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
