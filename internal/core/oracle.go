package core

import (
	"inspection-backend/internal/schema"
)

// OracleKind selects which pipeline implementation to deserialize from a
// model directory.
type OracleKind string

const (
	Linear OracleKind = "linear"
)

// Oracle is a pre-trained classifier over observations. Implementations are
// loaded once at startup from an externally produced artifact and read-only
// afterwards, so one Oracle serves concurrent requests.
type Oracle interface {
	Predict(obs schema.Observation) (bool, error)
}

type OracleLoader func(modelDir string) (Oracle, error)

func NewOracleLoaders() map[OracleKind]OracleLoader {
	return map[OracleKind]OracleLoader{
		Linear: func(modelDir string) (Oracle, error) {
			return LoadLinearPipeline(modelDir)
		},
	}
}
