package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/config"
	"github.com/Simplici0/sowhours/internal/events"
	"github.com/Simplici0/sowhours/internal/ledger"
	"github.com/Simplici0/sowhours/internal/pmremoval"
	"github.com/Simplici0/sowhours/internal/sow"
	"github.com/Simplici0/sowhours/internal/store"
)

type server struct {
	auth      *authService
	catalog   catalog.Provider
	engine    *sow.Engine
	removals  *pmremoval.Service
	publisher events.Publisher
	validate  *validator.Validate
	logger    *zap.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func newServer(ctx context.Context, database *sql.DB, cfg config.Config, logger *zap.Logger) (*server, error) {
	provider := store.NewSQLiteCatalog(database)
	policy, err := provider.GetPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog policy: %w", err)
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing workflow events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	removals := pmremoval.NewService(store.NewSQLiteRemovalStore(database), policy, publisher, logger)
	ledgers := ledger.NewService(store.NewSQLiteLedgerStore(database), logger)

	return &server{
		auth:      newAuthService(store.NewSQLiteUserStore(database), cfg.SessionSecret),
		catalog:   provider,
		engine:    sow.NewEngine(provider, store.NewSQLiteProfileStore(database), removals, ledgers, logger),
		removals:  removals,
		publisher: publisher,
		validate:  newValidator(),
		logger:    logger,
	}, nil
}

func (s *server) close() {
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("close event publisher", zap.Error(err))
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/logout", s.handleLogout)

	r.Get("/catalog/products", s.handleCatalogProducts)
	r.Get("/catalog/pricing-roles", s.handleCatalogRoles)

	r.Route("/sows/{sowID}", func(r chi.Router) {
		r.Put("/selection", s.handlePutSelection)
		r.Get("/hours", s.handleGetHours)
		r.Get("/ledger", s.handleGetLedger)
		r.Post("/ledger/roles", s.handleAddRole)
		r.Patch("/ledger/roles/{rowID}", s.handleUpdateRole)
		r.Delete("/ledger/roles/{rowID}", s.handleRemoveRole)
		r.Post("/ledger/roles/{rowID}/resync", s.handleResyncRole)
		r.Put("/discount", s.handlePutDiscount)
		r.Get("/totals", s.handleGetTotals)
	})

	r.Route("/pm-hours-removal", func(r chi.Router) {
		r.Post("/", s.handleSubmitRemoval)
		r.Get("/", s.handleListRemovals)
		r.Get("/dashboard", s.handleRemovalDashboard)
		r.Get("/{id}", s.handleGetRemoval)
		r.With(s.requireApprover).Put("/{id}", s.handleDecideRemoval)
		r.Post("/{id}/comments", s.handleAddRemovalComment)
	})

	return r
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a JSON body into dst and runs struct validation on it.
func (s *server) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", "invalid JSON: "+err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Invalid(jsonFieldName(verrs[0]), describeTag(verrs[0]))
		}
		return apperr.Invalid("body", err.Error())
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func jsonFieldName(fe validator.FieldError) string {
	if fe.Field() == "" {
		return "body"
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps error categories to status codes. Unexpected errors are
// logged and reported without detail.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrState):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
