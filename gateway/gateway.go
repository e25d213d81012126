// Package gateway exposes the approval engine over REST. Approver identity
// arrives in the X-Approver and X-Approver-Roles headers; authentication
// itself is delegated to the fronting proxy.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/viant/pausor/codec"
	"github.com/viant/pausor/model"
	"github.com/viant/pausor/service/approval"
	"github.com/viant/pausor/service/event"
	"github.com/viant/pausor/tracing"
)

const (
	headerApprover = "X-Approver"
	headerRoles    = "X-Approver-Roles"
)

// Service is the HTTP surface over the approval service.
type Service struct {
	approvals   *approval.Service
	codec       *codec.Service
	checkpoints model.Checkpoints
	broadcaster *event.Broadcaster[approval.Event]
}

// New creates a gateway over the supplied approval service. The broadcaster
// may be nil when the SSE stream is not exposed.
func New(approvals *approval.Service, aCodec *codec.Service, checkpoints model.Checkpoints, broadcaster *event.Broadcaster[approval.Event]) *Service {
	if aCodec == nil {
		aCodec = codec.New()
	}
	return &Service{
		approvals:   approvals,
		codec:       aCodec,
		checkpoints: checkpoints,
		broadcaster: broadcaster,
	}
}

// Router builds the versioned route table.
func (s *Service) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(traceMiddleware)
	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/approvals", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/approvals/pending", s.handlePending).Methods(http.MethodGet)
	api.HandleFunc("/approvals/events/stream", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/decide", s.handleDecide).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	return router
}

type createPayload struct {
	CheckpointID string                 `json:"checkpointId"`
	Context      json.RawMessage        `json:"context"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
}

func (s *Service) handleCreate(writer http.ResponseWriter, request *http.Request) {
	payload := &createPayload{}
	if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	checkpoint := s.checkpoints.Lookup(payload.CheckpointID)
	if checkpoint == nil {
		writeError(writer, http.StatusNotFound, fmt.Errorf("unknown checkpoint %s", payload.CheckpointID))
		return
	}
	execCtx, err := s.codec.Decode(payload.Context)
	if err != nil {
		writeError(writer, http.StatusUnprocessableEntity, err)
		return
	}
	result, err := s.approvals.EvaluateCheckpoint(request.Context(), checkpoint, execCtx, payload.Variables)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	status := http.StatusOK
	if result.Suspended {
		status = http.StatusCreated
	}
	writeJSON(writer, status, result)
}

func (s *Service) handlePending(writer http.ResponseWriter, request *http.Request) {
	approver, roles := identity(request)
	pending, err := s.approvals.PendingFor(request.Context(), approver, roles, request.URL.Query().Get("flow"))
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, pending)
}

func (s *Service) handleGet(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	aRequest, err := s.approvals.GetRequest(request.Context(), id)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	decisions, err := s.approvals.ListDecisions(request.Context(), id)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]interface{}{
		"request":   aRequest,
		"decisions": decisions,
	})
}

type decidePayload struct {
	Kind    approval.DecisionKind `json:"kind"`
	Comment string                `json:"comment,omitempty"`
}

func (s *Service) handleDecide(writer http.ResponseWriter, request *http.Request) {
	approver, roles := identity(request)
	if approver == "" {
		writeError(writer, http.StatusUnauthorized, fmt.Errorf("missing %s header", headerApprover))
		return
	}
	payload := &decidePayload{}
	if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
		writeError(writer, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	decision, err := s.approvals.SubmitDecision(request.Context(), mux.Vars(request)["id"], approver, roles, payload.Kind, payload.Comment)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, decision)
}

type cancelPayload struct {
	Comment string `json:"comment,omitempty"`
}

func (s *Service) handleCancel(writer http.ResponseWriter, request *http.Request) {
	approver, _ := identity(request)
	payload := &cancelPayload{}
	if request.ContentLength > 0 {
		if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
			writeError(writer, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
	}
	cancelled, err := s.approvals.CancelRequest(request.Context(), mux.Vars(request)["id"], approver, payload.Comment)
	if err != nil {
		s.writeServiceError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, cancelled)
}

// handleEvents streams lifecycle events as SSE, optionally narrowed to one
// flow with ?flow=.
func (s *Service) handleEvents(writer http.ResponseWriter, request *http.Request) {
	if s.broadcaster == nil {
		writeError(writer, http.StatusNotFound, fmt.Errorf("event stream not enabled"))
		return
	}
	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeError(writer, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	flowID := request.URL.Query().Get("flow")
	var filter func(*approval.Event) bool
	if flowID != "" {
		filter = func(anEvent *approval.Event) bool { return anEvent.FlowID == flowID }
	}
	subscription := s.broadcaster.Subscribe(filter)
	defer subscription.Close()

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-request.Context().Done():
			return
		case anEvent, open := <-subscription.Events():
			if !open {
				return
			}
			data, err := json.Marshal(anEvent)
			if err != nil {
				continue
			}
			fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", anEvent.Topic, data)
			flusher.Flush()
		}
	}
}

// statusRecorder captures the response code for span status mapping while
// passing streaming capabilities through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx, span := tracing.StartSpan(request.Context(), request.Method+" "+request.URL.Path, "SERVER")
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request.WithContext(ctx))
		span.SetStatusFromHTTPCode(recorder.status)
		span.End()
	})
}

func identity(request *http.Request) (string, []string) {
	approver := strings.TrimSpace(request.Header.Get(headerApprover))
	var roles []string
	for _, role := range strings.Split(request.Header.Get(headerRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return approver, roles
}

// writeServiceError maps approval error kinds onto HTTP statuses.
func (s *Service) writeServiceError(writer http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, approval.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, approval.ErrAlreadyResolved),
		errors.Is(err, approval.ErrDuplicateVote),
		errors.Is(err, approval.ErrDuplicateRequest),
		errors.Is(err, approval.ErrTransientConflict):
		status = http.StatusConflict
	case errors.Is(err, approval.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, approval.ErrResumeFailed):
		status = http.StatusBadGateway
	case errors.Is(err, codec.ErrUnencodable):
		status = http.StatusUnprocessableEntity
	}
	writeError(writer, status, err)
}

func writeError(writer http.ResponseWriter, status int, err error) {
	writeJSON(writer, status, map[string]string{"error": err.Error()})
}

func writeJSON(writer http.ResponseWriter, status int, value interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(value)
}
