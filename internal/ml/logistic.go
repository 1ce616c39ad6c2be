package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
)

// LogisticModel is a JSON model artifact: a linear model over FeatureNames
// followed by the logistic function, plus the location classes of the
// label encoder fitted at training time.
type LogisticModel struct {
	Features        []string  `json:"features"`
	Weights         []float64 `json:"weights"`
	Bias            float64   `json:"bias"`
	LocationClasses []string  `json:"location_classes"`

	encoder *LabelEncoder
}

// LoadLogisticModel reads and validates a model artifact.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("ml: read model %s: %w", path, err)
	}

	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewLogisticModel builds a model in memory.
func NewLogisticModel(weights []float64, bias float64, locations []string) (*LogisticModel, error) {
	m := &LogisticModel{
		Features:        append([]string(nil), FeatureNames...),
		Weights:         weights,
		Bias:            bias,
		LocationClasses: locations,
	}
	if err := m.init(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LogisticModel) init() error {
	if len(m.Features) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidModel, len(FeatureNames), len(m.Features))
	}
	for i, name := range FeatureNames {
		if m.Features[i] != name {
			return fmt.Errorf("%w: feature %d is %q, want %q", ErrInvalidModel, i, m.Features[i], name)
		}
	}
	if len(m.Weights) != len(FeatureNames) {
		return fmt.Errorf("%w: expected %d weights, got %d", ErrInvalidModel, len(FeatureNames), len(m.Weights))
	}
	if len(m.LocationClasses) == 0 {
		return fmt.Errorf("%w: no location classes", ErrInvalidModel)
	}
	m.encoder = NewLabelEncoder(m.LocationClasses)
	return nil
}

// Probability implements Scorer.
func (m *LogisticModel) Probability(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("ml: expected %d features, got %d", len(m.Weights), len(features))
	}
	z := m.Bias
	for i, x := range features {
		z += m.Weights[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Encoder implements Scorer.
func (m *LogisticModel) Encoder() Encoder {
	return m.encoder
}

// LabelEncoder assigns each distinct class its index in sorted order.
type LabelEncoder struct {
	classes []string
}

// NewLabelEncoder sorts and deduplicates classes.
func NewLabelEncoder(classes []string) *LabelEncoder {
	sorted := append([]string(nil), classes...)
	slices.Sort(sorted)
	return &LabelEncoder{classes: slices.Compact(sorted)}
}

// Encode returns the class index or ErrUnknownLocation.
func (e *LabelEncoder) Encode(location string) (int, error) {
	if i, found := slices.BinarySearch(e.classes, location); found {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLocation, location)
}

// Classes returns the encoder's classes in index order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}
