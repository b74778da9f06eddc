// metrics объявляет счётчики Prometheus auth-сервиса.
// Регистрация — в дефолтном реестре; экспорт — promhttp в main.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations — количество успешных регистраций.
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ryauth_registrations_total",
		Help: "Successful user registrations.",
	})

	// Logins — попытки входа по результату (success/failure).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ryauth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	// Refreshes — попытки ротации по результату (success/rejected).
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ryauth_refreshes_total",
		Help: "Refresh rotations by result.",
	}, []string{"result"})

	// RefreshReuseDetected — срабатывания детектора повторного
	// использования refresh-токена (каскадный отзыв сессий).
	RefreshReuseDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ryauth_refresh_reuse_detected_total",
		Help: "Refresh token replays that triggered cascading revocation.",
	})

	// SessionsRevoked — количество сессий, отозванных каскадом.
	SessionsRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ryauth_sessions_revoked_total",
		Help: "Sessions revoked by breach containment.",
	})
)
