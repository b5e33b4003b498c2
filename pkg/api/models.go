package api

import "encoding/json"

type PredictResponse struct {
	ObservationId string `json:"observation_id"`
	Label         bool   `json:"label"`

	Error string `json:"error,omitempty"`
}

type UpdateRequest struct {
	ObservationId string `json:"observation_id"`
	Label         *bool  `json:"label"`
}

type UpdateResponse struct {
	ObservationId string `json:"observation_id"`
	Label         bool   `json:"label"`
}

type PredictionRecord struct {
	ObservationId string          `json:"observation_id"`
	Observation   json.RawMessage `json:"observation"`
	Label         bool            `json:"label"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
