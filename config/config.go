// Package config provides loading and parsing of store.yaml configuration
// files. A store configuration defines the tier topology (labels, cell
// pools, capacity budgets, cross-tier links) and the tuning constants for
// placement, retrieval scoring and maintenance.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a store.yaml configuration file.
type Config struct {
	// Tiers defines the store's topical partitions. When empty, the
	// default six-tier topology is used.
	Tiers []TierConfig `yaml:"tiers,omitempty"`

	// FieldSize is the length of each cell's numeric embedding.
	// Default: 64.
	FieldSize int `yaml:"field_size,omitempty"`

	// MaxProjections bounds the projection list of a single cell; the
	// oldest entries beyond the bound are pruned during maintenance.
	// Default: 32.
	MaxProjections int `yaml:"max_projections,omitempty"`

	// Policy is an optional CEL admission expression applied to retrieval
	// candidates (see the policy package).
	Policy string `yaml:"policy,omitempty"`

	// Tuning holds the scoring and maintenance constants.
	Tuning TuningConfig `yaml:"tuning,omitempty"`
}

// TierConfig defines one storage tier.
type TierConfig struct {
	// Label is the tier's topical name (e.g. "semantic-core").
	Label string `yaml:"label"`

	// Cells is the tier's fixed cell pool size. Default: 16.
	Cells int `yaml:"cells,omitempty"`

	// CapacityBytes is the tier's theoretical byte budget. Default: 1 MiB.
	CapacityBytes int64 `yaml:"capacity_bytes,omitempty"`

	// Linked lists 1-3 other tier ids used for cross-dimensional candidate
	// expansion during retrieval.
	Linked []int `yaml:"linked,omitempty"`
}

// TuningConfig holds the store's tuning constants. The defaults carry no
// principled derivation; treat them as starting points, not law.
//
// The numeric constants are pointers so an explicit zero survives loading:
// a nil field takes the default, a configured 0 disables the constant.
// Read them through the Get accessors.
type TuningConfig struct {
	// EntanglementIncrement is added between every pair of co-submitted
	// core patterns. Default: 0.15.
	EntanglementIncrement *float64 `yaml:"entanglement_increment,omitempty"`

	// CellBindingStrength is added between a pattern and the cell storing
	// it. Default: 1.0.
	CellBindingStrength *float64 `yaml:"cell_binding_strength,omitempty"`

	// InterferenceScale multiplies each cross-cell noise contribution
	// during retrieval scoring. Default: 0.3.
	InterferenceScale *float64 `yaml:"interference_scale,omitempty"`

	// InterferenceCap bounds the total interference charged against a
	// single context factor. Default: 1.0.
	InterferenceCap *float64 `yaml:"interference_cap,omitempty"`

	// GraphDecay multiplies every resonance entry once per maintenance
	// pass, bounding association growth. Default: 0.95.
	GraphDecay *float64 `yaml:"graph_decay,omitempty"`

	// PruneEnergy is the retention-energy floor below which a cell's
	// projections are pruned. Default: 0.25.
	PruneEnergy *float64 `yaml:"prune_energy,omitempty"`

	// CompactionFloor is the stability below which a cell is destructively
	// compacted. Default: 0.70.
	CompactionFloor *float64 `yaml:"compaction_floor,omitempty"`

	// StabilityThreshold is the default maintenance threshold below which
	// a cell receives the lighter Linked consolidation. Default: 0.85.
	StabilityThreshold *float64 `yaml:"stability_threshold,omitempty"`

	// RephaseStability is the stability every state transition resets a
	// cell to. Default: 0.97.
	RephaseStability *float64 `yaml:"rephase_stability,omitempty"`

	// ActivationTightening scales the activation threshold down on every
	// rephase. Default: 0.9.
	ActivationTightening *float64 `yaml:"activation_tightening,omitempty"`

	// WearFactor scales the decay rate up on every rephase. Default: 1.1.
	WearFactor *float64 `yaml:"wear_factor,omitempty"`

	// ReinforceFloor and ReinforceFactor control the Linked consolidation:
	// context weights above the floor are scaled by the factor.
	// Defaults: 0.1 and 1.05.
	ReinforceFloor  *float64 `yaml:"reinforce_floor,omitempty"`
	ReinforceFactor *float64 `yaml:"reinforce_factor,omitempty"`

	// RecencyHalfLife is how long between accesses a cell's retention
	// energy takes to halve. Format: Go duration string (e.g. "30m", "2h").
	// Default: 1h.
	RecencyHalfLife string `yaml:"recency_half_life,omitempty"`
}

// Default sizing values.
const (
	DefaultCellsPerTier  = 16
	DefaultCapacityBytes = 1 << 20
	DefaultFieldSize     = 64
	DefaultMaxProjection = 32
)

// Topology bounds. Cell ids carry two tier digits and three slot digits,
// so a store can address at most 100 tiers of 1000 cells each.
const (
	MaxTiers        = 100
	MaxCellsPerTier = 1000
)

// Tuning defaults, applied by the Get accessors when a field is nil.
const (
	defaultEntanglementIncrement = 0.15
	defaultCellBindingStrength   = 1.0
	defaultInterferenceScale     = 0.3
	defaultInterferenceCap       = 1.0
	defaultGraphDecay            = 0.95
	defaultPruneEnergy           = 0.25
	defaultCompactionFloor       = 0.70
	defaultStabilityThreshold    = 0.85
	defaultRephaseStability      = 0.97
	defaultActivationTightening  = 0.9
	defaultWearFactor            = 1.1
	defaultReinforceFloor        = 0.1
	defaultReinforceFactor       = 1.05
)

// DefaultTierLabels is the default six-dimension topology; each tier links
// to the next and the one after next, wrapping around.
var DefaultTierLabels = []string{
	"semantic-core",
	"episodic-trace",
	"procedural-flow",
	"contextual-frame",
	"associative-web",
	"temporal-chain",
}

// Default returns the default store configuration.
func Default() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if len(c.Tiers) == 0 {
		n := len(DefaultTierLabels)
		c.Tiers = make([]TierConfig, n)
		for i, label := range DefaultTierLabels {
			c.Tiers[i] = TierConfig{
				Label:  label,
				Linked: []int{(i + 1) % n, (i + 2) % n},
			}
		}
	}
	for i := range c.Tiers {
		if c.Tiers[i].Cells == 0 {
			c.Tiers[i].Cells = DefaultCellsPerTier
		}
		if c.Tiers[i].CapacityBytes == 0 {
			c.Tiers[i].CapacityBytes = DefaultCapacityBytes
		}
	}
	if c.FieldSize == 0 {
		c.FieldSize = DefaultFieldSize
	}
	if c.MaxProjections == 0 {
		c.MaxProjections = DefaultMaxProjection
	}
	if c.Tuning.RecencyHalfLife == "" {
		c.Tuning.RecencyHalfLife = "1h"
	}
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// GetEntanglementIncrement returns the configured value or the default.
// The remaining Get accessors follow the same contract.
func (t *TuningConfig) GetEntanglementIncrement() float64 {
	return orDefault(t.EntanglementIncrement, defaultEntanglementIncrement)
}

func (t *TuningConfig) GetCellBindingStrength() float64 {
	return orDefault(t.CellBindingStrength, defaultCellBindingStrength)
}

func (t *TuningConfig) GetInterferenceScale() float64 {
	return orDefault(t.InterferenceScale, defaultInterferenceScale)
}

func (t *TuningConfig) GetInterferenceCap() float64 {
	return orDefault(t.InterferenceCap, defaultInterferenceCap)
}

func (t *TuningConfig) GetGraphDecay() float64 {
	return orDefault(t.GraphDecay, defaultGraphDecay)
}

func (t *TuningConfig) GetPruneEnergy() float64 {
	return orDefault(t.PruneEnergy, defaultPruneEnergy)
}

func (t *TuningConfig) GetCompactionFloor() float64 {
	return orDefault(t.CompactionFloor, defaultCompactionFloor)
}

func (t *TuningConfig) GetStabilityThreshold() float64 {
	return orDefault(t.StabilityThreshold, defaultStabilityThreshold)
}

func (t *TuningConfig) GetRephaseStability() float64 {
	return orDefault(t.RephaseStability, defaultRephaseStability)
}

func (t *TuningConfig) GetActivationTightening() float64 {
	return orDefault(t.ActivationTightening, defaultActivationTightening)
}

func (t *TuningConfig) GetWearFactor() float64 {
	return orDefault(t.WearFactor, defaultWearFactor)
}

func (t *TuningConfig) GetReinforceFloor() float64 {
	return orDefault(t.ReinforceFloor, defaultReinforceFloor)
}

func (t *TuningConfig) GetReinforceFactor() float64 {
	return orDefault(t.ReinforceFactor, defaultReinforceFactor)
}

// GetRecencyHalfLife parses the recency half-life and returns a duration.
// Returns the default value if not set or invalid.
func (t *TuningConfig) GetRecencyHalfLife() time.Duration {
	if t == nil || t.RecencyHalfLife == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(t.RecencyHalfLife)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Validate checks the configuration for structural errors. ApplyDefaults
// should run first; Validate does not fill missing values.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("config: at least one tier is required")
	}
	if len(c.Tiers) > MaxTiers {
		return fmt.Errorf("config: at most %d tiers, got %d", MaxTiers, len(c.Tiers))
	}
	for i, tc := range c.Tiers {
		if tc.Label == "" {
			return fmt.Errorf("config: tier %d: label is required", i)
		}
		if tc.Cells <= 0 {
			return fmt.Errorf("config: tier %d (%s): cells must be positive, got %d", i, tc.Label, tc.Cells)
		}
		if tc.Cells > MaxCellsPerTier {
			return fmt.Errorf("config: tier %d (%s): at most %d cells, got %d", i, tc.Label, MaxCellsPerTier, tc.Cells)
		}
		if tc.CapacityBytes <= 0 {
			return fmt.Errorf("config: tier %d (%s): capacity_bytes must be positive, got %d", i, tc.Label, tc.CapacityBytes)
		}
		if len(tc.Linked) > 3 {
			return fmt.Errorf("config: tier %d (%s): at most 3 linked tiers, got %d", i, tc.Label, len(tc.Linked))
		}
		for _, link := range tc.Linked {
			if link < 0 || link >= len(c.Tiers) {
				return fmt.Errorf("config: tier %d (%s): linked tier %d does not exist", i, tc.Label, link)
			}
			if link == i {
				return fmt.Errorf("config: tier %d (%s): tier cannot link to itself", i, tc.Label)
			}
		}
	}
	if c.FieldSize <= 0 {
		return fmt.Errorf("config: field_size must be positive, got %d", c.FieldSize)
	}
	if c.MaxProjections <= 0 {
		return fmt.Errorf("config: max_projections must be positive, got %d", c.MaxProjections)
	}
	return c.Tuning.validate()
}

func (t *TuningConfig) validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: tuning.%s must be in [0, 1], got %v", name, v)
		}
		return nil
	}
	for name, v := range map[string]float64{
		"graph_decay":           t.GetGraphDecay(),
		"prune_energy":          t.GetPruneEnergy(),
		"compaction_floor":      t.GetCompactionFloor(),
		"stability_threshold":   t.GetStabilityThreshold(),
		"rephase_stability":     t.GetRephaseStability(),
		"activation_tightening": t.GetActivationTightening(),
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}
	if t.GetWearFactor() < 1 {
		return fmt.Errorf("config: tuning.wear_factor must be >= 1, got %v", t.GetWearFactor())
	}
	if t.GetInterferenceScale() < 0 || t.GetInterferenceCap() < 0 {
		return fmt.Errorf("config: tuning interference values must be non-negative")
	}
	if t.GetEntanglementIncrement() < 0 || t.GetCellBindingStrength() < 0 {
		return fmt.Errorf("config: tuning resonance increments must be non-negative")
	}
	if t.RecencyHalfLife != "" {
		if _, err := time.ParseDuration(t.RecencyHalfLife); err != nil {
			return fmt.Errorf("config: tuning.recency_half_life: %w", err)
		}
	}
	return nil
}

// Load reads, parses and validates a store.yaml file, filling unset fields
// with defaults.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
