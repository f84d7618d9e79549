package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"leadline/internal/domain"
	"leadline/internal/engine"
	"leadline/internal/metrics"
	"leadline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"lead not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"status\"}"`
}

// apiError is the error envelope. The message is repeated at the top level
// for clients that only read a flat message.
type apiError struct {
	status  int
	Message string       `json:"message"`
	Body    apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Leadline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newMetricsMiddleware(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Leadline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", metrics.Handler())
	registerHealth(group)
	registerKanban(group, cfg.Engine)
	registerContacts(group, cfg.Engine)
	registerConversations(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Message: message,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) {
		return newAPIError(499, "canceled", "request canceled", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// newMetricsMiddleware counts every request by its chi route pattern.
func newMetricsMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start))
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{}
	for _, p := range publicPaths(basePath) {
		open[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Leadline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;. Get a dev token from POST %s.
    </p>
  </body>
</html>`, specURL, path.Join("/", basePath, "auth/dev/login"))
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerKanban(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "kanban",
		Method:      http.MethodGet,
		Path:        "/v1/contacts/kanban",
		Summary:     "One page of every funnel stage",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Page     int `query:"page" default:"1" minimum:"1"`
		PageSize int `query:"pageSize" minimum:"0" maximum:"200"`
	}) (*struct {
		Body domain.KanbanPage `json:"body"`
	}, error) {
		page, err := e.Kanban(ctx, input.Page, input.PageSize)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.KanbanPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "kanban-counts",
		Method:      http.MethodGet,
		Path:        "/v1/contacts/kanban/counts",
		Summary:     "Lead totals per funnel stage",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.KanbanCounts `json:"body"`
	}, error) {
		counts, err := e.KanbanCounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.KanbanCounts `json:"body"`
		}{Body: counts}, nil
	})
}

func registerContacts(api huma.API, e engine.Engine) {
	type leadPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-contact",
		Method:      http.MethodGet,
		Path:        "/v1/contacts/{id}",
		Summary:     "Get a lead",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *leadPath) (*struct {
		Body domain.Lead `json:"body"`
	}, error) {
		l, err := e.Lead(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Lead `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-contact",
		Method:        http.MethodPost,
		Path:          "/v1/contacts",
		Summary:       "Create a lead",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateLeadRequest `json:"body"`
	}) (*struct {
		Body domain.Lead `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLead(ctx, engine.CreateLeadOptions{
			ID:         input.Body.ID,
			ChannelID:  input.Body.ChannelID,
			Name:       input.Body.Name,
			ExternalID: input.Body.ExternalID,
			Phone:      input.Body.Phone,
			Email:      input.Body.Email,
			Tags:       input.Body.Tags,
			Fields:     input.Body.Fields,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Lead `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contact-status",
		Method:      http.MethodPatch,
		Path:        "/v1/contacts/{id}/status",
		Summary:     "Move a lead to another stage",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Lead `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.UpdateLeadStatus(ctx, input.ID, strings.TrimSpace(input.Body.Status), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Lead `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contact-conversations",
		Method:      http.MethodGet,
		Path:        "/v1/contacts/{id}/conversations",
		Summary:     "Conversation history of a lead",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *leadPath) (*struct {
		Body []domain.Conversation `json:"body"`
	}, error) {
		convs, err := e.Conversations(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Conversation `json:"body"`
		}{Body: convs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contact-simulations",
		Method:      http.MethodGet,
		Path:        "/v1/contacts/{id}/simulations",
		Summary:     "Simulations of a lead, newest first",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *leadPath) (*struct {
		Body []domain.Simulation `json:"body"`
	}, error) {
		sims, err := e.Simulations(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Simulation `json:"body"`
		}{Body: sims}, nil
	})
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-ai-status",
		Method:      http.MethodPatch,
		Path:        "/v1/conversations/ai-status",
		Summary:     "Pause or resume automated handling for a phone",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body AIStatusRequest `json:"body"`
	}) (*struct {
		Body domain.AIStatus `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.SetAIStatus(ctx, input.Body.Phone, input.Body.Active, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AIStatus `json:"body"`
		}{Body: st}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		ttl := DefaultTokenTTL
		if input.Body.TTLSeconds > 0 {
			ttl = time.Duration(input.Body.TTLSeconds) * time.Second
		}
		token, err := SignToken(authCfg.JWTSecret, actor, ttl)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresIn: int(ttl / time.Second)}}, nil
	})
}
