package strategy

import (
	"fmt"

	"organoid-qc/pkg/models"
)

// Grouping names understood by ForName.
const (
	GroupingMicroscope = "microscope"
	GroupingExperiment = "experiment"
)

// UnknownGroup labels records with no grouping value.
const UnknownGroup = "unknown"

// GroupingStrategy assigns image records to equipment-trend groups
type GroupingStrategy interface {
	GroupKey(record models.ImageRecord) string
	GetStrategyName() string
}

// MicroscopeGrouping groups by microscope. It is the canonical grouping.
type MicroscopeGrouping struct{}

// NewMicroscopeGrouping creates the per-microscope strategy
func NewMicroscopeGrouping() GroupingStrategy {
	return &MicroscopeGrouping{}
}

func (s *MicroscopeGrouping) GroupKey(record models.ImageRecord) string {
	if record.MicroscopeID == "" {
		return UnknownGroup
	}
	return record.MicroscopeID
}

// GetStrategyName returns the strategy name
func (s *MicroscopeGrouping) GetStrategyName() string {
	return GroupingMicroscope
}

// ExperimentGrouping puts every record in one group, for data without
// microscope ids.
type ExperimentGrouping struct{}

// NewExperimentGrouping creates the experiment-wide strategy
func NewExperimentGrouping() GroupingStrategy {
	return &ExperimentGrouping{}
}

func (s *ExperimentGrouping) GroupKey(models.ImageRecord) string {
	return "all"
}

// GetStrategyName returns the strategy name
func (s *ExperimentGrouping) GetStrategyName() string {
	return GroupingExperiment
}

// ForName resolves a grouping name; empty selects the microscope grouping.
func ForName(name string) (GroupingStrategy, error) {
	switch name {
	case "", GroupingMicroscope:
		return NewMicroscopeGrouping(), nil
	case GroupingExperiment:
		return NewExperimentGrouping(), nil
	default:
		return nil, fmt.Errorf("unknown grouping %q", name)
	}
}

// GroupingContext manages the grouping strategy
type GroupingContext struct {
	strategy GroupingStrategy
}

// NewGroupingContext creates a new grouping context
func NewGroupingContext(strategy GroupingStrategy) *GroupingContext {
	return &GroupingContext{strategy: strategy}
}

// SetStrategy changes the grouping strategy
func (c *GroupingContext) SetStrategy(strategy GroupingStrategy) {
	c.strategy = strategy
}

// Partition splits records into groups, keeping the input order inside
// each group. Keys are returned in order of first appearance.
func (c *GroupingContext) Partition(records []models.ImageRecord) ([]string, map[string][]models.ImageRecord) {
	groups := make(map[string][]models.ImageRecord)
	var keys []string
	for _, r := range records {
		k := c.strategy.GroupKey(r)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	return keys, groups
}

// GetCurrentStrategy returns the current strategy name
func (c *GroupingContext) GetCurrentStrategy() string {
	return c.strategy.GetStrategyName()
}
