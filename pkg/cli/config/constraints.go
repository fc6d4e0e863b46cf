package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// Constraints holds CLI flags for the activity constraint table
type Constraints struct {
	path string
}

// Flags returns CLI flags for constraint configuration
func (c *Constraints) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "constraints",
			Usage:       "Activity constraints TOML file (built-in defaults when omitted)",
			Sources:     cli.EnvVars("PIPPIN_CONSTRAINTS"),
			Destination: &c.path,
		},
	}
}

// ActivityConstraint is one [[activity]] section of the constraints file
type ActivityConstraint struct {
	Name          string         `toml:"name"`
	MaxPerDay     int            `toml:"max_per_day"`
	CooldownAfter map[string]int `toml:"cooldown_after"` // seconds
}

// Validate checks if the ActivityConstraint is valid
func (a *ActivityConstraint) Validate() error {
	if a.Name == "" {
		return goerr.New("activity name is required")
	}
	if a.MaxPerDay < 0 {
		return goerr.New("max_per_day must not be negative",
			goerr.V("name", a.Name), goerr.V("max_per_day", a.MaxPerDay))
	}
	for other, seconds := range a.CooldownAfter {
		if other == "" {
			return goerr.New("cooldown_after key must not be empty", goerr.V("name", a.Name))
		}
		if seconds < 0 {
			return goerr.New("cooldown_after seconds must not be negative",
				goerr.V("name", a.Name), goerr.V("after", other), goerr.V("seconds", seconds))
		}
	}
	return nil
}

// ConstraintsFile is the TOML file layout
type ConstraintsFile struct {
	Activities []ActivityConstraint `toml:"activity"`
}

// Validate checks if the ConstraintsFile is valid
func (f *ConstraintsFile) Validate() error {
	names := make(map[string]bool)
	for _, a := range f.Activities {
		if err := a.Validate(); err != nil {
			return goerr.Wrap(err, "invalid activity constraint")
		}
		if names[a.Name] {
			return goerr.New("duplicate activity constraint", goerr.V("name", a.Name))
		}
		names[a.Name] = true
	}
	return nil
}

// ToConstraintSet converts the file into the domain constraint table
func (f *ConstraintsFile) ToConstraintSet() model.ConstraintSet {
	set := make(model.ConstraintSet, len(f.Activities))
	for _, a := range f.Activities {
		constraint := model.ActivityConstraint{
			MaxPerDay: a.MaxPerDay,
		}
		if len(a.CooldownAfter) > 0 {
			constraint.CooldownAfter = make(map[string]time.Duration, len(a.CooldownAfter))
			for other, seconds := range a.CooldownAfter {
				constraint.CooldownAfter[other] = time.Duration(seconds) * time.Second
			}
		}
		set[a.Name] = constraint
	}
	return set
}

// defaultConstraints caps the outward-facing activities: at most three
// posts and three drawings per day, three hours apart from each other.
func defaultConstraints() *ConstraintsFile {
	return &ConstraintsFile{
		Activities: []ActivityConstraint{
			{
				Name:      "post_update",
				MaxPerDay: 3,
				CooldownAfter: map[string]int{
					"post_update": 3 * 3600,
					"draw":        3 * 3600,
				},
			},
			{
				Name:      "draw",
				MaxPerDay: 3,
				CooldownAfter: map[string]int{
					"post_update": 3 * 3600,
					"draw":        3 * 3600,
				},
			},
		},
	}
}

// Load reads and validates the constraints file, falling back to the
// built-in defaults when no path is configured.
func (c *Constraints) Load() (*ConstraintsFile, error) {
	if c.path == "" {
		return defaultConstraints(), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read constraints file", goerr.V("path", c.path))
	}

	var file ConstraintsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML constraints", goerr.V("path", c.path))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "constraints validation failed", goerr.V("path", c.path))
	}

	return &file, nil
}

// Configure loads the constraint table for the scheduler
func (c *Constraints) Configure() (model.ConstraintSet, error) {
	file, err := c.Load()
	if err != nil {
		return nil, err
	}
	return file.ToConstraintSet(), nil
}
