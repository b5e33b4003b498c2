package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"inspection-backend/internal/core"
	"inspection-backend/internal/database"
	"inspection-backend/internal/messaging"
	"inspection-backend/internal/schema"
	"inspection-backend/pkg/api"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PredictionService serves the prediction endpoints. Soft failures (rejected
// observations, duplicate or unknown observation ids) return 200 with an
// error field in the body; HTTP error codes are reserved for malformed
// requests and server faults.
type PredictionService struct {
	store     *database.Store
	schema    *schema.Schema
	oracle    core.Oracle
	publisher messaging.Publisher
}

func NewPredictionService(store *database.Store, obsSchema *schema.Schema, oracle core.Oracle, publisher messaging.Publisher) *PredictionService {
	return &PredictionService{store: store, schema: obsSchema, oracle: oracle, publisher: publisher}
}

func (s *PredictionService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/predict", RestHandler(s.Predict))
	r.Post("/update", RestHandler(s.UpdateLabel))
	r.Get("/list-db-contents", RestHandler(s.ListPredictions))
	r.Get("/predictions/{observation_id}", RestHandler(s.GetPrediction))
}

func (s *PredictionService) Predict(r *http.Request) (any, error) {
	// The body is kept verbatim, it is stored alongside the prediction.
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("error reading request body", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}

	var obs schema.Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		slog.Error("error parsing request body", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}

	if err := s.schema.Validate(obs); err != nil {
		return api.ErrorResponse{Error: err.Error()}, nil
	}

	id, ok := obs[schema.ObservationIDField].(string)
	if !ok {
		return api.ErrorResponse{Error: fmt.Sprintf("Observation ID must be a string, got: %v", obs[schema.ObservationIDField])}, nil
	}

	label, err := s.oracle.Predict(obs)
	if err != nil {
		slog.Error("error scoring observation", "observation_id", id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to score observation")
	}

	ctx := r.Context()

	if err := s.store.Insert(ctx, id, raw, label); err != nil {
		if errors.Is(err, database.ErrDuplicateObservation) {
			// The stored record keeps its first label.
			return api.PredictResponse{
				ObservationId: id,
				Label:         label,
				Error:         fmt.Sprintf("Observation ID: \"%s\" already exists", id),
			}, nil
		}
		slog.Error("error creating prediction record", "observation_id", id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create prediction record")
	}

	if err := s.publisher.PublishPredictionRecorded(ctx, messaging.PredictionRecordedPayload{
		EventId:       uuid.New(),
		ObservationId: id,
		Label:         label,
		RecordedAt:    time.Now().UTC(),
	}); err != nil {
		slog.Error("error publishing prediction recorded event", "observation_id", id, "error", err)
	}

	return api.PredictResponse{ObservationId: id, Label: label}, nil
}

func (s *PredictionService) UpdateLabel(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UpdateRequest](r)
	if err != nil {
		return nil, err
	}

	// An absent label must never overwrite a stored one with the zero value.
	if req.Label == nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {label} field in request body")
	}
	label := *req.Label

	ctx := r.Context()

	if err := s.store.UpdateLabel(ctx, req.ObservationId, label); err != nil {
		if errors.Is(err, database.ErrObservationNotFound) {
			return api.ErrorResponse{Error: fmt.Sprintf("Observation ID: \"%s\" does not exist", req.ObservationId)}, nil
		}
		slog.Error("error updating prediction record", "observation_id", req.ObservationId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to update prediction record")
	}

	if err := s.publisher.PublishLabelCorrected(ctx, messaging.LabelCorrectedPayload{
		EventId:       uuid.New(),
		ObservationId: req.ObservationId,
		Label:         label,
		CorrectedAt:   time.Now().UTC(),
	}); err != nil {
		slog.Error("error publishing label corrected event", "observation_id", req.ObservationId, "error", err)
	}

	return api.UpdateResponse{ObservationId: req.ObservationId, Label: label}, nil
}

func (s *PredictionService) ListPredictions(r *http.Request) (any, error) {
	records, err := s.store.List(r.Context())
	if err != nil {
		slog.Error("error listing prediction records", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list prediction records")
	}

	views := make([]api.PredictionRecord, 0, len(records))
	for _, record := range records {
		views = append(views, api.PredictionRecord{
			ObservationId: record.ObservationId,
			Observation:   json.RawMessage(record.Observation),
			Label:         record.Label,
		})
	}

	return views, nil
}

func (s *PredictionService) GetPrediction(r *http.Request) (any, error) {
	id, err := URLParamString(r, "observation_id")
	if err != nil {
		return nil, err
	}

	record, err := s.store.FindById(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrObservationNotFound) {
			return nil, CodedError(http.StatusNotFound, err)
		}
		slog.Error("error getting prediction record", "observation_id", id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving prediction record")
	}

	return api.PredictionRecord{
		ObservationId: record.ObservationId,
		Observation:   json.RawMessage(record.Observation),
		Label:         record.Label,
	}, nil
}
