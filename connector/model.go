package connector

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/obplatform/obplatform-go/client/query"
)

// DefaultEndpoint is the public database API.
const DefaultEndpoint = "https://api.ashraeobdatabase.com"

const (
	behaviorsPath = "/api/v1/behaviors"
	healthPath    = "/api/v1/health"
	studiesPath   = "/api/v1/studies"
)

// ErrInvalidID is returned for behavior or study ids that are neither
// strings nor numbers.
var ErrInvalidID = errors.New("invalid id")

// Behavior is an occupant behavior type the database holds data for.
type Behavior struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// Study is a study record exactly as the server returns it.
type Study map[string]any

type healthStatus struct {
	Status *string `json:"status"`
}

// StringIDs converts ids to the string form the export endpoint accepts,
// so 22 and "22" name the same study. Numbers, named numeric types
// included, print in their shortest decimal form and fmt.Stringer values
// use their String method.
func StringIDs(ids ...any) ([]string, error) {
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		s, err := stringID(id)
		if err != nil {
			return nil, fmt.Errorf("id at position %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringID(id any) (string, error) {
	if rv := reflect.ValueOf(id); rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64 {
		if f := rv.Float(); math.IsInf(f, 0) || math.IsNaN(f) {
			return "", fmt.Errorf("%w: %v", ErrInvalidID, f)
		}
	}

	s, ok := query.Scalar(id)
	if !ok {
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidID, id)
	}

	return s, nil
}
