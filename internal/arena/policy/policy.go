package policy

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the thresholds used by softlock validation. Angles are radians,
// distances are world units.
type Policy struct {
	MinExitAngle               float64 `yaml:"min_exit_angle_radians" json:"min_exit_angle_radians"`
	ExitAngleCheckDistance     float64 `yaml:"exit_angle_check_distance" json:"exit_angle_check_distance"`
	ConcaveTrapMaxDistance     float64 `yaml:"concave_trap_max_distance" json:"concave_trap_max_distance"`
	ConcaveRightAngleTolerance float64 `yaml:"concave_right_angle_tolerance_radians" json:"concave_right_angle_tolerance_radians"`
}

func Defaults() Policy {
	return Policy{
		MinExitAngle:               0.55,
		ExitAngleCheckDistance:     150,
		ConcaveTrapMaxDistance:     110,
		ConcaveRightAngleTolerance: 0.22,
	}
}

// file mirrors policy.yaml. Degree fields are accepted for hand editing and
// take precedence over the radian fields when set.
type file struct {
	Policy `yaml:",inline"`

	MinExitAngleDegrees               *float64 `yaml:"min_exit_angle_degrees"`
	ConcaveRightAngleToleranceDegrees *float64 `yaml:"concave_right_angle_tolerance_degrees"`
}

// Load reads policy.yaml. An empty path or a missing file yields Defaults().
func Load(path string) (Policy, error) {
	p := Defaults()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Policy, error) {
	f := file{Policy: Defaults()}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Defaults(), fmt.Errorf("policy.yaml: %w", err)
	}
	p := f.Policy
	if f.MinExitAngleDegrees != nil {
		p.MinExitAngle = *f.MinExitAngleDegrees * math.Pi / 180
	}
	if f.ConcaveRightAngleToleranceDegrees != nil {
		p.ConcaveRightAngleTolerance = *f.ConcaveRightAngleToleranceDegrees * math.Pi / 180
	}
	if err := p.Validate(); err != nil {
		return Defaults(), fmt.Errorf("policy.yaml: %w", err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s must be finite and >= 0, got %v", name, v)
		}
		return nil
	}
	if err := check("min_exit_angle_radians", p.MinExitAngle); err != nil {
		return err
	}
	if err := check("exit_angle_check_distance", p.ExitAngleCheckDistance); err != nil {
		return err
	}
	if err := check("concave_trap_max_distance", p.ConcaveTrapMaxDistance); err != nil {
		return err
	}
	if err := check("concave_right_angle_tolerance_radians", p.ConcaveRightAngleTolerance); err != nil {
		return err
	}
	if p.MinExitAngle > math.Pi {
		return fmt.Errorf("min_exit_angle_radians must be <= pi, got %v", p.MinExitAngle)
	}
	return nil
}
