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
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spycats/internal/domain"
	"spycats/internal/engine"
	"spycats/internal/metrics"
	"spycats/internal/repo"
)

const defaultEchoMessage = "Spy Cats API"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"mission_assigned"`
	Message string         `json:"message" example:"mission is assigned to a cat and cannot be deleted"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope shared by every failure.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Spy Cats API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	// Huma's own decode and schema failures share the invalid_input envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newHumaError(status, msg, errs)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newHumaError(status, msg, errs)
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(instrument(logger, cfg.Metrics))
	router.Use(middleware.Recoverer)

	hcfg := huma.DefaultConfig("Spy Cats API", "1.0.0")
	hcfg.OpenAPIPath = "" // served below with the error schema attached
	hcfg.DocsPath = ""    // custom Swagger UI below
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerDocs(router, basePath)
	registerEcho(group)
	registerHealth(group)
	registerAgents(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerTargets(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func newHumaError(status int, msg string, errs []error) huma.StatusError {
	if status == http.StatusBadRequest {
		status = http.StatusUnprocessableEntity
	}
	var details map[string]any
	if len(errs) > 0 {
		details = map[string]any{"errors": errs}
	}
	return newAPIError(status, "", msg, details)
}

var kindStatus = map[domain.Kind]int{
	domain.KindNotFound:               http.StatusNotFound,
	domain.KindInvalidInput:           http.StatusUnprocessableEntity,
	domain.KindInvalidBreed:           http.StatusBadRequest,
	domain.KindUpstreamUnavailable:    http.StatusBadGateway,
	domain.KindAlreadyComplete:        http.StatusBadRequest,
	domain.KindMissionAlreadyComplete: http.StatusBadRequest,
	domain.KindTargetAlreadyComplete:  http.StatusBadRequest,
	domain.KindMissionAssigned:        http.StatusBadRequest,
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		if status, ok := kindStatus[de.Kind]; ok {
			return newAPIError(status, de.ErrorCode(), de.Message, nil)
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "invalid_input"
	case http.StatusBadGateway:
		return "upstream_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
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
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Spy Cats API Docs</title>
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
  </body>
</html>`, specURL)
}

func registerEcho(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "echo",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Echo a message",
	}, func(ctx context.Context, input *struct {
		Message string `query:"message"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		msg := input.Message
		if msg == "" {
			msg = defaultEchoMessage
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: msg}}, nil
	})
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

type idPath struct {
	ID int64 `path:"id"`
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-spy-cat",
		Method:        http.MethodPost,
		Path:          "/spy_cats/create/",
		Summary:       "Register a spy cat",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body CreateAgentRequest `json:"body"`
	}) (*struct {
		Body AgentResponse `json:"body"`
	}, error) {
		in, err := validateCreateAgent(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.RegisterAgent(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentResponse `json:"body"`
		}{Body: agentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-spy-cats",
		Method:      http.MethodGet,
		Path:        "/spy_cats/list",
		Summary:     "List spy cats",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AgentResponse `json:"body"`
	}, error) {
		items, err := e.ListAgents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AgentResponse `json:"body"`
		}{Body: mapAgents(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-spy-cat",
		Method:      http.MethodGet,
		Path:        "/spy_cats/{id}",
		Summary:     "Get a spy cat",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body AgentResponse `json:"body"`
	}, error) {
		a, err := e.GetAgent(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentResponse `json:"body"`
		}{Body: agentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-spy-cat-salary",
		Method:      http.MethodPut,
		Path:        "/spy_cats/{id}",
		Summary:     "Update a spy cat's salary",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body UpdateSalaryRequest `json:"body"`
	}) (*struct {
		Body AgentResponse `json:"body"`
	}, error) {
		salary, err := validateUpdateSalary(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.UpdateAgentSalary(ctx, input.ID, salary)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentResponse `json:"body"`
		}{Body: agentResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-spy-cat",
		Method:      http.MethodDelete,
		Path:        "/spy_cats/{id}",
		Summary:     "Delete a spy cat",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		if err := e.DeleteAgent(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Spy cat deleted"}}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions/create/",
		Summary:       "Create a mission with its targets",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		in, err := validateCreateMission(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := e.CreateMission(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions/list",
		Summary:     "List missions with their targets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MissionResponse `json:"body"`
	}, error) {
		items, err := e.ListMissions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MissionResponse `json:"body"`
		}{Body: mapMissions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get a mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-mission",
		Method:      http.MethodPut,
		Path:        "/missions/{id}",
		Summary:     "Mark a mission complete",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64                   `path:"id"`
		Body *CompleteMissionRequest `json:"body" required:"false"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.SetMissionComplete(ctx, input.ID, requestedCompletion(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mission",
		Method:      http.MethodDelete,
		Path:        "/missions/{id}",
		Summary:     "Delete an unassigned mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		if err := e.DeleteMission(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Mission deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-spy-cat",
		Method:      http.MethodPut,
		Path:        "/missions/{id}/assign_cat/{cat_id}",
		Summary:     "Assign a spy cat to a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		CatID int64 `path:"cat_id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.AssignAgentToMission(ctx, input.ID, input.CatID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m)}, nil
	})
}

func registerTargets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-target",
		Method:      http.MethodPut,
		Path:        "/missions/target/{id}",
		Summary:     "Update a target's notes or completion",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body *UpdateTargetRequest `json:"body" required:"false"`
	}) (*struct {
		Body TargetResponse `json:"body"`
	}, error) {
		t, err := e.UpdateTarget(ctx, input.ID, validateUpdateTarget(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TargetResponse `json:"body"`
		}{Body: targetResponse(t)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"spy_cat,mission,target"`
		EntityID   int64  `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilter{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
