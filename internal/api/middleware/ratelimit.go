// ratelimit.go — ограничение частоты запросов по IP клиента.
// Token bucket (golang.org/x/time/rate) на каждого клиента; лимитеры
// хранятся в LRU с истечением, неактивные клиенты вытесняются.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	apierrors "github.com/drdator/ccm/internal/api/errors"
)

// maxTrackedClients — максимальное число одновременно отслеживаемых ключей.
const maxTrackedClients = 10000

// ScopeAuth — отдельное пространство ключей для маршрутов /api/auth.
const ScopeAuth = ":auth"

// RateLimiter — лимит requests запросов за window на ключ клиента.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter создаёт ограничитель: requests запросов за window,
// допускается всплеск до requests.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, window),
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    requests,
		now:      time.Now,
	}
}

// Middleware возвращает middleware с ключом "IP клиента + scope".
// При превышении — 429 RATE_LIMITED и заголовок Retry-After (секунды).
func (rl *RateLimiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r) + scope

			ok, retryAfter := rl.allow(key)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				apierrors.RateLimited(w, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow резервирует токен для key. false — лимит исчерпан,
// retryAfter — время до появления следующего токена.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	lim := rl.limiter(key)
	now := rl.now()

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if lim, ok := rl.limiters.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters.Add(key, lim)
	return lim
}

// ClientIP — адрес клиента из RemoteAddr (после chi RealIP).
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
