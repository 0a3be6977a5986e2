package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	handler "github.com/omanjaya/websmansa-sub004/handler/http"
	"github.com/omanjaya/websmansa-sub004/platform/limiter"
	"github.com/omanjaya/websmansa-sub004/platform/metrics"
	"github.com/omanjaya/websmansa-sub004/platform/redis"
	"github.com/omanjaya/websmansa-sub004/service/article"
)

// Logging and telemetry identifiers.
const (
	component        = "gateway-http"
	namespaceLimiter = "limiter"
	namespaceService = "service"
	storeService     = "postgres"
)

// Versions.
const (
	versionCurrent = "v1"
)

// Supported quota store types.
const (
	storeBucket = "bucket"
	storeMem    = "mem"
	storeRedis  = "redis"
)

// Prefixes.
const (
	prefixRateLimiter = "ratelimiter:actor"
)

// Timeouts.
const (
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Buildtime vars.
var (
	revision = "0000000-dev"
)

func main() {
	var (
		begin = time.Now()

		cacheDefault  = flag.Duration("cache.default", 5*time.Minute, "Cache duration for paths without an explicit rule")
		limitAdmin    = flag.Int64("ratelimit.admin", 240, "Requests per window for administrative actors")
		limitGuest    = flag.Int64("ratelimit.guest", 60, "Requests per window for anonymous actors")
		limitMember   = flag.Int64("ratelimit.member", 120, "Requests per window for authenticated actors")
		limitFailOpen = flag.Bool("ratelimit.failopen", true, "Admit traffic when the quota store is unreachable")
		limitStore    = flag.String("ratelimit.store", storeRedis, "Quota store used for rate limiting (redis|mem|bucket)")
		limitWindow   = flag.Duration("ratelimit.window", time.Minute, "Length of the rate limit window")
		listenAddr    = flag.String("listen.addr", ":8083", "HTTP bind address for main API")
		postgresURL   = flag.String("postgres.url", "", "Postgres URL to connect to")
		redisAddr     = flag.String("redis.addr", ":6379", "Redis address to connect to")
		telemetryAddr = flag.String("telemetry.addr", ":9000", "HTTP bind address where prometheus telemetry is exposed")
	)
	flag.Parse()

	// Setup logging.
	logger := log.With(
		log.NewJSONLogger(log.NewSyncWriter(os.Stdout)),
		"caller", log.Caller(3),
		"component", component,
		"revision", revision,
	)

	hostname, err := os.Hostname()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	logger = log.With(logger, "host", hostname)

	// Setup instrumentation.
	go func(addr string) {
		logger.Log(
			"duration", time.Since(begin).Nanoseconds(),
			"lifecycle", "start",
			"listen", addr,
			"sub", "telemetry",
		)

		http.Handle("/metrics", promhttp.Handler())

		err := http.ListenAndServe(addr, nil)
		if err != nil {
			logger.Log("err", err, "lifecycle", "abort", "sub", "telemetry")
			os.Exit(1)
		}
	}(*telemetryAddr)

	fieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldService,
		metrics.FieldStore,
	}

	limiterErrCount, limiterOpCount, limiterOpLatency := metrics.KeyMetrics(
		namespaceLimiter,
		fieldKeys...,
	)

	serviceErrCount, serviceOpCount, serviceOpLatency := metrics.KeyMetrics(
		namespaceService,
		fieldKeys...,
	)

	// Setup clients.
	redisPool := redis.Pool(*redisAddr, "")

	pgClient, err := sqlx.Connect(storeService, *postgresURL)
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	// Setup quota ledger.
	var limits limiter.Limiter

	switch *limitStore {
	case storeBucket:
		limits = limiter.TokenBucket()
	case storeMem:
		limits = limiter.Mem()
	case storeRedis:
		limits = limiter.Redis(redisPool, prefixRateLimiter)
	default:
		logger.Log(
			"err", fmt.Sprintf("quota store '%s' not supported", *limitStore),
			"lifecycle", "abort",
		)
		os.Exit(1)
	}

	limits = limiter.InstrumentMiddleware(
		component,
		*limitStore,
		limiterErrCount,
		limiterOpCount,
		limiterOpLatency,
	)(limits)
	limits = limiter.LogMiddleware(logger, *limitStore)(limits)

	// Setup services.
	var articles article.Service
	articles = article.PostgresService(pgClient)
	articles = article.InstrumentMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(articles)
	articles = article.LogMiddleware(logger, storeService)(articles)

	// Setup cache policy.
	cachePolicy := handler.NewCachePolicy(
		*cacheDefault,
		handler.CacheRule{Pattern: "settings", Duration: 30 * time.Minute},
		handler.CacheRule{Pattern: "staff", Duration: 15 * time.Minute},
		handler.CacheRule{Pattern: "facilities", Duration: 15 * time.Minute},
		handler.CacheRule{Pattern: "alumni", Duration: 15 * time.Minute},
		handler.CacheRule{Pattern: "articles", Duration: 5 * time.Minute},
		handler.CacheRule{Pattern: "announcements", Duration: 5 * time.Minute},
		handler.CacheRule{Pattern: "galleries", Duration: 5 * time.Minute},
		handler.CacheRule{Pattern: "agenda", Duration: 5 * time.Minute},
	)

	tiers := handler.TierLimits{
		Admin:  *limitAdmin,
		Guest:  *limitGuest,
		Member: *limitMember,
	}

	// Setup middlewares. Rate limiting runs before the cache stage so
	// rejected calls never invoke a handler or pay for a fingerprint.
	withPublic := handler.Chain(
		handler.CtxPrepare(versionCurrent),
		handler.Log(logger),
		handler.Instrument(component),
		handler.SecureHeaders(),
		handler.DebugHeaders(revision, hostname),
		handler.CORS(),
		handler.Gzip(),
		handler.HasUserAgent(),
		handler.ValidateContent(),
		handler.CtxActor(authenticate),
		handler.RateLimit(logger, limits, tiers, *limitWindow, *limitFailOpen),
		handler.CacheControl(cachePolicy),
	)

	// Setup router.
	router := mux.NewRouter().StrictSlash(true)

	router.Methods("GET").Path(`/health-45016490610398192`).Name("healthcheck").HandlerFunc(
		handler.Wrap(
			handler.CtxPrepare(versionCurrent),
			handler.Health(pgClient, redisPool),
		),
	)

	current := router.PathPrefix(fmt.Sprintf("/api/%s", versionCurrent)).Subrouter()

	current.Methods("GET").Path(`/articles`).Name("articleList").HandlerFunc(
		handler.Wrap(withPublic, handler.ArticleList(articles)),
	)

	current.Methods("GET").Path(`/articles/{articleID:[0-9]+}`).Name("articleRetrieve").HandlerFunc(
		handler.Wrap(withPublic, handler.ArticleRetrieve(articles)),
	)

	current.Methods("PUT").Path(`/admin/articles`).Name("articlePut").HandlerFunc(
		handler.Wrap(withPublic, handler.ArticlePut(articles)),
	)

	// Setup server.
	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	logger.Log(
		"duration", time.Since(begin).Nanoseconds(),
		"lifecycle", "start",
		"listen", *listenAddr,
		"sub", "api",
	)

	err = server.ListenAndServe()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort", "sub", "api")
		os.Exit(1)
	}
}

// authenticate trusts the fronting auth proxy to have validated the bearer
// token and to encode the resulting claims as "<user_id>:<role>".
// TODO: replace with a lookup against the session service once it is
// exposed to the gateway.
func authenticate(token string) (uint64, string, error) {
	parts := strings.SplitN(token, ":", 2)

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", err
	}

	role := ""
	if len(parts) == 2 {
		role = parts[1]
	}

	return id, role, nil
}
