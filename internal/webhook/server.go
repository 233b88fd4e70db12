// Package webhook implements the inbound push receiver for
// integrations that prefer to notify the fusion engine rather than be
// polled by the Sync Orchestrator. It resolves the target adapter
// through the Integration Registry and dispatches the raw vendor
// payload to adapter.WebhookReceivable when the adapter implements it.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/iff-guardian/fusion/internal/adapter"
	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
	"github.com/iff-guardian/fusion/internal/registry"
	"github.com/iff-guardian/fusion/pkg/logger"
)

// AdapterResolver is the subset of *registry.Registry the webhook
// server depends on, kept as an interface so tests can exercise
// routing without a real registry.
type AdapterResolver interface {
	GetAdapter(ctx context.Context, id string) (adapter.Adapter, error)
}

var _ AdapterResolver = (*registry.Registry)(nil)

// Server is the HTTP receiver for POST /webhooks/{integrationId}.
type Server struct {
	router *mux.Router
	log    logger.Logger
}

// New builds a Server. allowedOrigins configures the CORS policy
// guarding the receiver.
func New(resolver AdapterResolver, allowedOrigins []string, log logger.Logger) *Server {
	s := &Server{router: mux.NewRouter(), log: log}

	s.router.HandleFunc("/webhooks/{integrationId}", s.handleWebhook(resolver)).Methods(http.MethodPost)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Webhook-Signature"},
	})
	s.router.Use(func(next http.Handler) http.Handler {
		return corsHandler.Handler(next)
	})

	return s
}

// Handler returns the receiver's http.Handler for mounting on a
// listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleWebhook(resolver AdapterResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrationID := mux.Vars(r)["integrationId"]

		body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		a, err := resolver.GetAdapter(ctx, integrationID)
		if err != nil {
			var fe *fusionerrors.FusionError
			if errors.As(err, &fe) && fe.Kind == fusionerrors.KindNotFound {
				http.Error(w, "integration not found", http.StatusNotFound)
				return
			}
			s.log.Error("webhook: resolve adapter failed", "integrationId", integrationID, "error", err)
			http.Error(w, "failed to resolve integration", http.StatusInternalServerError)
			return
		}

		receiver, ok := a.(adapter.WebhookReceivable)
		if !ok {
			http.Error(w, "integration does not accept webhooks", http.StatusNotImplemented)
			return
		}

		if err := receiver.ReceiveWebhook(ctx, body); err != nil {
			s.log.Error("webhook: adapter rejected payload", "integrationId", integrationID, "error", err)
			http.Error(w, "webhook rejected", http.StatusUnprocessableEntity)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}
