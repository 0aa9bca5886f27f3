package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

const maxBodyBytes = 1 << 20

// HTTPServer — HTTP-граница вызова операций.
type HTTPServer struct {
	router  *chi.Mux
	gateway *Gateway
	logger  *zap.Logger

	// Проверка вызывающего: JWT или заголовки (dev)
	authMiddleware func(http.Handler) http.Handler
	audit          *AuditHandler
	gatherer       prometheus.Gatherer
	rateLimit      int
}

type HTTPOptions struct {
	Auth func(http.Handler) http.Handler
	// Audit — чтение журнала, nil если БД не настроена
	Audit    *AuditHandler
	Gatherer prometheus.Gatherer
	// RateLimit — запросов в минуту на вызывающего, 0 — без ограничения
	RateLimit int
}

func NewHTTPServer(gw *Gateway, logger *zap.Logger, opts HTTPOptions) *HTTPServer {
	s := &HTTPServer{
		router:         chi.NewRouter(),
		gateway:        gw,
		logger:         logger.Named("http"),
		authMiddleware: opts.Auth,
		audit:          opts.Audit,
		gatherer:       opts.Gatherer,
		rateLimit:      opts.RateLimit,
	}
	if s.authMiddleware == nil {
		s.authMiddleware = func(next http.Handler) http.Handler { return next }
	}
	s.routes()
	return s
}

func (s *HTTPServer) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(s.rateLimit, time.Minute,
				httprate.WithKeyFuncs(callerKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
						Code: "rate_limited", Message: http.StatusText(http.StatusTooManyRequests),
					}})
				}),
			))
		}

		r.Get("/v1/tools", s.listTools)
		r.Post("/v1/tools/{name}", s.invokeTool)
		if s.audit != nil {
			r.Get("/v1/audit", s.requireRole(domain.RoleAdmin, s.audit.GetLogs))
		}
	})
}

// ServeHTTP позволяет использовать HTTPServer как стандартный http.Handler
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireRole пускает только вызывающих с указанной (нормализованной) ролью.
func (s *HTTPServer) requireRole(role domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := s.gateway.policy.Resolve(domain.InvocationFrom(r.Context()).CallerRole)
		if got != role {
			writeJSON(w, http.StatusForbidden, errorBody{Error: errorDetail{
				Code: "forbidden", Message: "role '" + got.String() + "' cannot read the audit log",
			}})
			return
		}
		next(w, r)
	}
}

func callerKey(r *http.Request) (string, error) {
	if caller := strings.TrimSpace(domain.InvocationFrom(r.Context()).Caller); caller != "" {
		return "caller:" + caller, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Destructive bool   `json:"destructive"`
}

func (s *HTTPServer) listTools(w http.ResponseWriter, r *http.Request) {
	ops := s.gateway.Visible(r.Context())
	out := make([]toolView, 0, len(ops))
	for _, op := range ops {
		out = append(out, toolView{Name: op.Name, Description: op.Description, Kind: string(op.Kind), Destructive: op.Destructive})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": out})
}

func (s *HTTPServer) invokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{Code: "invalid_input", Message: "request body too large"}})
		return
	}

	result, err := s.gateway.Invoke(r.Context(), name, body)
	if err != nil {
		status, payload := httpError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("tool invocation error",
				zap.String("tool", name),
				zap.Int("status", status),
				zap.Error(err))
		}
		writeJSON(w, status, payload)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

type errorDetail struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	RequestID      string `json:"oktaRequestId,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func httpError(err error) (int, errorBody) {
	detail := errorDetail{Code: Outcome(err), Message: err.Error()}

	var apiErr *okta.APIError
	switch detail.Code {
	case "invalid_input":
		return http.StatusBadRequest, errorBody{detail}
	case "forbidden":
		return http.StatusForbidden, errorBody{detail}
	case "unknown_operation":
		return http.StatusNotFound, errorBody{detail}
	case "circuit_open":
		return http.StatusServiceUnavailable, errorBody{detail}
	case "upstream":
		if errors.As(err, &apiErr) {
			detail.UpstreamStatus = apiErr.StatusCode
			detail.RequestID = apiErr.RequestID
			if apiErr.ErrorCode != "" {
				detail.Code = apiErr.ErrorCode
			}
		}
		return http.StatusBadGateway, errorBody{detail}
	}
	detail.Message = "internal error"
	return http.StatusInternalServerError, errorBody{detail}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
