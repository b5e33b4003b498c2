package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	backend "inspection-backend/internal/api"
	"inspection-backend/internal/core"
	"inspection-backend/internal/database"
	"inspection-backend/internal/messaging"
	"inspection-backend/internal/schema"
	"inspection-backend/pkg/api"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := database.New("file::memory:")
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func newRouter(t *testing.T, db *gorm.DB, oracle core.Oracle) (*chi.Mux, *messaging.InMemoryQueue) {
	obsSchema, err := schema.Default()
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()
	service := backend.NewPredictionService(database.NewStore(db), obsSchema, oracle, queue)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return router, queue
}

// stubOracle labels requests from a fixed sequence, cycling when exhausted.
type stubOracle struct {
	labels []bool
	calls  int
}

func (o *stubOracle) Predict(obs schema.Observation) (bool, error) {
	label := o.labels[o.calls%len(o.labels)]
	o.calls++
	return label, nil
}

type failingOracle struct{}

func (failingOracle) Predict(obs schema.Observation) (bool, error) {
	return false, errors.New("feature out of range")
}

func validObservation(id string) map[string]any {
	return map[string]any{
		"observation_id": id,
		"Type":           "Entity inspection",
		"Date":           "3919-08-16 14:37:00+00:00",
		"Part of a standard enforcement protocol": true,
		"Galactic X":   3434.23,
		"Galactic Y":   2321.12,
		"Reproduction": "Sexual",
		"Age range":    "Young",
		"Self-defined species category":    "Terran - Northern",
		"Officer-defined species category": "Terran",
		"Governing law":        "Intergalactic Substance Regulation 3919",
		"Object of inspection": "Controlled substances",
		"Inspection involving more than just outerwear": false,
		"Enforcement station": "Dyson Sphere F76-JK",
	}
}

func postJSON(t *testing.T, router *chi.Mux, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	return rec
}

func TestHealth(t *testing.T) {
	db := createDB(t)
	router, _ := newRouter(t, db, &stubOracle{labels: []bool{true}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestPredict(t *testing.T) {
	db := createDB(t)
	oracle := &stubOracle{labels: []bool{true}}
	router, queue := newRouter(t, db, oracle)

	body, err := json.Marshal(validObservation("obs-1"))
	require.NoError(t, err)

	t.Run("Predict", func(t *testing.T) {
		rec := postJSON(t, router, "/predict", body)

		assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
		assert.JSONEq(t, `{"observation_id": "obs-1", "label": true}`, rec.Body.String())
		assert.Equal(t, 1, oracle.calls)
	})

	t.Run("GetPrediction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var record api.PredictionRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
		assert.Equal(t, "obs-1", record.ObservationId)
		assert.True(t, record.Label)
		assert.JSONEq(t, string(body), string(record.Observation))
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		select {
		case event := <-queue.Events():
			assert.Equal(t, messaging.PredictionRecordedQueue, event.Type())
			var payload messaging.PredictionRecordedPayload
			require.NoError(t, json.Unmarshal(event.Payload(), &payload))
			assert.Equal(t, "obs-1", payload.ObservationId)
			assert.True(t, payload.Label)
			assert.NotEqual(t, uuid.Nil, payload.EventId)
		default:
			t.Fatal("expected a prediction recorded event")
		}
	})
}

func TestPredictReportsNegativeLabel(t *testing.T) {
	db := createDB(t)
	router, _ := newRouter(t, db, &stubOracle{labels: []bool{false}})

	body, err := json.Marshal(validObservation("obs-1"))
	require.NoError(t, err)

	rec := postJSON(t, router, "/predict", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": false}`, rec.Body.String())
}

func TestPredictRejectsInvalidObservations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		wantErr string
	}{
		{
			name:    "missing field",
			mutate:  func(obs map[string]any) { delete(obs, "Date") },
			wantErr: "Missing fields: Date",
		},
		{
			name: "missing observation id listed first",
			mutate: func(obs map[string]any) {
				delete(obs, "observation_id")
				delete(obs, "Reproduction")
			},
			wantErr: "Missing fields: observation_id, Reproduction",
		},
		{
			name:    "unrecognized field",
			mutate:  func(obs map[string]any) { obs["Warp factor"] = 9 },
			wantErr: "Unrecognized fields provided: Warp factor",
		},
		{
			name:    "invalid categorical value",
			mutate:  func(obs map[string]any) { obs["Age range"] = "Juvenile" },
			wantErr: "Invalid value provided for Age range: Juvenile. Allowed values are: 'Hatchling','Young','Adult','Elder','Ancient'",
		},
		{
			name:    "non string observation id",
			mutate:  func(obs map[string]any) { obs["observation_id"] = 123 },
			wantErr: "Observation ID must be a string, got: 123",
		},
	}

	db := createDB(t)
	oracle := &stubOracle{labels: []bool{true}}
	router, _ := newRouter(t, db, oracle)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := validObservation("obs-1")
			tt.mutate(obs)
			body, err := json.Marshal(obs)
			require.NoError(t, err)

			rec := postJSON(t, router, "/predict", body)

			assert.Equal(t, http.StatusOK, rec.Code)
			var response api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, tt.wantErr, response.Error)
		})
	}

	// Rejected observations never reach the oracle or the store.
	assert.Equal(t, 0, oracle.calls)

	req := httptest.NewRequest(http.MethodGet, "/list-db-contents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPredictDuplicateObservationId(t *testing.T) {
	db := createDB(t)
	oracle := &stubOracle{labels: []bool{false, true}}
	router, queue := newRouter(t, db, oracle)

	first, err := json.Marshal(validObservation("obs-1"))
	require.NoError(t, err)

	rec := postJSON(t, router, "/predict", first)
	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": false}`, rec.Body.String())
	<-queue.Events()

	retry := validObservation("obs-1")
	retry["Enforcement station"] = "Oort outpost"
	second, err := json.Marshal(retry)
	require.NoError(t, err)

	// Same id, fresh prediction: the response reports the new label, the
	// stored record keeps the old one.
	rec = postJSON(t, router, "/predict", second)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": true, "error": "Observation ID: \"obs-1\" already exists"}`, rec.Body.String())
	assert.Equal(t, 2, oracle.calls)

	select {
	case <-queue.Events():
		t.Fatal("no event expected for a duplicate observation")
	default:
	}

	req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)

	assert.Equal(t, http.StatusOK, getRec.Code)
	var record api.PredictionRecord
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &record))
	assert.False(t, record.Label)
	assert.JSONEq(t, string(first), string(record.Observation))
}

func TestPredictSucceedsWhenEventQueueFull(t *testing.T) {
	db := createDB(t)
	router, queue := newRouter(t, db, &stubOracle{labels: []bool{true}})

	// Fill the event buffer so the publish inside the handler cannot land.
	full := false
	for i := 0; i < 1000 && !full; i++ {
		payload := messaging.LabelCorrectedPayload{ObservationId: fmt.Sprintf("noise-%d", i)}
		full = queue.PublishLabelCorrected(context.Background(), payload) != nil
	}
	require.True(t, full, "expected the queue buffer to fill")

	body, err := json.Marshal(validObservation("obs-1"))
	require.NoError(t, err)

	rec := postJSON(t, router, "/predict", body)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": true}`, rec.Body.String())

	// The prediction is recorded even though its event was dropped.
	req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestUpdateLabel(t *testing.T) {
	stored := `{"observation_id":"obs-1","Galactic X":3434.23}`
	db := createDB(t, &database.Prediction{ObservationId: "obs-1", Observation: datatypes.JSON(stored), Label: false})
	router, queue := newRouter(t, db, &stubOracle{labels: []bool{true}})

	rec := postJSON(t, router, "/update", []byte(`{"observation_id": "obs-1", "label": true}`))
	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": true}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)

	var record api.PredictionRecord
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &record))
	assert.True(t, record.Label)
	assert.JSONEq(t, stored, string(record.Observation))

	select {
	case event := <-queue.Events():
		assert.Equal(t, messaging.LabelCorrectedQueue, event.Type())
		var payload messaging.LabelCorrectedPayload
		require.NoError(t, json.Unmarshal(event.Payload(), &payload))
		assert.Equal(t, "obs-1", payload.ObservationId)
		assert.True(t, payload.Label)
	default:
		t.Fatal("expected a label corrected event")
	}

	// Re-asserting the same label is not an error.
	rec = postJSON(t, router, "/update", []byte(`{"observation_id": "obs-1", "label": true}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"observation_id": "obs-1", "label": true}`, rec.Body.String())
}

func TestUpdateLabelUnknownId(t *testing.T) {
	db := createDB(t, &database.Prediction{ObservationId: "obs-1", Observation: datatypes.JSON(`{}`), Label: true})
	router, queue := newRouter(t, db, &stubOracle{labels: []bool{true}})

	label := false
	for _, id := range []string{"ghost", "OBS-1", "obs-1 "} {
		body, err := json.Marshal(api.UpdateRequest{ObservationId: id, Label: &label})
		require.NoError(t, err)

		rec := postJSON(t, router, "/update", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"error": "Observation ID: \"%s\" does not exist"}`, id), rec.Body.String())
	}

	select {
	case <-queue.Events():
		t.Fatal("no event expected for an unknown observation")
	default:
	}

	req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var record api.PredictionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Label)
}

func TestUpdateLabelMissingLabelField(t *testing.T) {
	db := createDB(t, &database.Prediction{ObservationId: "obs-1", Observation: datatypes.JSON(`{}`), Label: true})
	router, queue := newRouter(t, db, &stubOracle{labels: []bool{true}})

	for _, body := range []string{
		`{"observation_id": "obs-1"}`,
		`{"observation_id": "obs-1", "label": null}`,
	} {
		rec := postJSON(t, router, "/update", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "recieved response: "+rec.Body.String())
		assert.Contains(t, rec.Body.String(), "missing {label} field")
	}

	select {
	case <-queue.Events():
		t.Fatal("no event expected when the label is absent")
	default:
	}

	// The stored label must survive an update that never set one.
	req := httptest.NewRequest(http.MethodGet, "/predictions/obs-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var record api.PredictionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.Label)
}

func TestListDbContents(t *testing.T) {
	db := createDB(t,
		&database.Prediction{ObservationId: "obs-1", Observation: datatypes.JSON(`{"Galactic X":1}`), Label: true},
		&database.Prediction{ObservationId: "obs-2", Observation: datatypes.JSON(`{"Galactic X":2}`), Label: false},
	)
	router, _ := newRouter(t, db, &stubOracle{labels: []bool{true}})

	req := httptest.NewRequest(http.MethodGet, "/list-db-contents", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var records []api.PredictionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.ElementsMatch(t, []api.PredictionRecord{
		{ObservationId: "obs-1", Observation: json.RawMessage(`{"Galactic X":1}`), Label: true},
		{ObservationId: "obs-2", Observation: json.RawMessage(`{"Galactic X":2}`), Label: false},
	}, records)
}

func TestMalformedRequestBodies(t *testing.T) {
	db := createDB(t)
	oracle := &stubOracle{labels: []bool{true}}
	router, _ := newRouter(t, db, oracle)

	rec := postJSON(t, router, "/predict", []byte(`{"observation_id":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/predict", []byte(`[1, 2]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/update", []byte(`{"observation_id": "obs-1", "label": "yes"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, oracle.calls)
}

func TestPredictOracleFault(t *testing.T) {
	db := createDB(t)
	router, _ := newRouter(t, db, failingOracle{})

	body, err := json.Marshal(validObservation("obs-1"))
	require.NoError(t, err)

	rec := postJSON(t, router, "/predict", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/list-db-contents", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	assert.JSONEq(t, `[]`, getRec.Body.String())
}

func TestGetPredictionNotFound(t *testing.T) {
	db := createDB(t)
	router, _ := newRouter(t, db, &stubOracle{labels: []bool{true}})

	req := httptest.NewRequest(http.MethodGet, "/predictions/ghost", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
