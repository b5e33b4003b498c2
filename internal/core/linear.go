package core

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"inspection-backend/internal/schema"
)

// PipelineFileName is the artifact the training side exports into the model
// directory.
const PipelineFileName = "pipeline.json"

type numericFeature struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Weight float64 `json:"weight"`
}

type booleanFeature struct {
	Weight float64 `json:"weight"`
}

type categoricalFeature struct {
	Values  map[string]float64 `json:"values"`
	Default float64            `json:"default"`
}

// LinearPipeline is a logistic scorer deserialized from a plain JSON artifact:
// standardized numeric features, indicator booleans, weight-per-value
// categoricals, and a decision threshold. The artifact contents are produced
// offline and never modified here.
type LinearPipeline struct {
	Lowercase   []string                      `json:"lowercase"`
	Intercept   float64                       `json:"intercept"`
	Threshold   float64                       `json:"threshold"`
	Numeric     map[string]numericFeature     `json:"numeric"`
	Boolean     map[string]booleanFeature     `json:"boolean"`
	Categorical map[string]categoricalFeature `json:"categorical"`
}

func LoadLinearPipeline(modelDir string) (*LinearPipeline, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, PipelineFileName))
	if err != nil {
		return nil, fmt.Errorf("error reading pipeline artifact: %w", err)
	}

	var pipeline LinearPipeline
	if err := json.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("error parsing pipeline artifact: %w", err)
	}
	if pipeline.Threshold <= 0 || pipeline.Threshold >= 1 {
		return nil, fmt.Errorf("pipeline threshold %v outside (0, 1)", pipeline.Threshold)
	}
	return &pipeline, nil
}

func (p *LinearPipeline) Predict(obs schema.Observation) (bool, error) {
	score := p.Intercept

	for field, feature := range p.Numeric {
		value, present, err := numericValue(obs[field])
		if err != nil {
			return false, fmt.Errorf("field %q: %w", field, err)
		}
		if !present {
			continue // imputed to the mean, z = 0
		}
		std := feature.Std
		if std <= 0 || math.IsNaN(std) || math.IsInf(std, 0) {
			std = 1 // zero variance columns export std 0
		}
		score += feature.Weight * (value - feature.Mean) / std
	}

	for field, feature := range p.Boolean {
		switch value := obs[field].(type) {
		case nil:
		case bool:
			if value {
				score += feature.Weight
			}
		default:
			return false, fmt.Errorf("field %q: expected a boolean, got %T", field, obs[field])
		}
	}

	for field, feature := range p.Categorical {
		text, ok := obs[field].(string)
		if !ok {
			score += feature.Default
			continue
		}
		if slices.Contains(p.Lowercase, field) {
			text = strings.ToLower(text)
		}
		if weight, known := feature.Values[text]; known {
			score += weight
		} else {
			score += feature.Default
		}
	}

	probability := 1 / (1 + math.Exp(-score))
	return probability >= p.Threshold, nil
}

func numericValue(value any) (float64, bool, error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("expected a number, got %T", value)
	}
}
