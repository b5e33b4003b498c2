package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Validate checks that obs carries exactly observation_id plus the declared
// fields, then that every categorical field holds one of its allowed values.
// The checks run in that order and the first failure wins, so an observation
// with both missing and unrecognized fields reports only the missing ones.
// Error messages are part of the API contract and returned to clients verbatim.
func (s *Schema) Validate(obs Observation) error {
	if err := s.checkFields(obs); err != nil {
		return err
	}
	return s.checkCategoricalValues(obs)
}

func (s *Schema) checkFields(obs Observation) error {
	var missing []string
	if _, ok := obs[ObservationIDField]; !ok {
		missing = append(missing, ObservationIDField)
	}
	for _, field := range s.fields {
		if _, ok := obs[field.Name]; !ok {
			missing = append(missing, field.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("Missing fields: %s", strings.Join(missing, ", "))
	}

	var extra []string
	for key := range obs {
		if key == ObservationIDField {
			continue
		}
		if _, ok := s.index[key]; !ok {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra) // map iteration order must not leak into responses
		return fmt.Errorf("Unrecognized fields provided: %s", strings.Join(extra, ", "))
	}
	return nil
}

func (s *Schema) checkCategoricalValues(obs Observation) error {
	for _, field := range s.fields {
		if !field.Categorical() {
			continue
		}
		value, ok := obs[field.Name]
		if !ok {
			return fmt.Errorf("Categorical field %s missing", field.Name)
		}
		text, isString := value.(string)
		if !isString || !slices.Contains(field.Values, text) {
			return fmt.Errorf("Invalid value provided for %s: %v. Allowed values are: %s",
				field.Name, value, quoteValues(field.Values))
		}
	}
	return nil
}

func quoteValues(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = fmt.Sprintf("'%s'", value)
	}
	return strings.Join(quoted, ",")
}
