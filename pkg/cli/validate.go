package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/activity"
	"github.com/secmon-lab/pippin/pkg/cli/config"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var constraintsCfg config.Constraints

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the activity constraints file against the registry",
		Flags:   constraintsCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			file, err := constraintsCfg.Load()
			if err != nil {
				return goerr.Wrap(err, "constraints validation failed")
			}

			registry, err := activity.Registry()
			if err != nil {
				return goerr.Wrap(err, "failed to build activity registry")
			}

			// A constraint on an unknown name is legal (it just never
			// matches) but almost always a typo, so warn about it.
			known := make(map[string]bool, registry.Len())
			for _, name := range registry.Names() {
				known[name] = true
			}
			for _, a := range file.Activities {
				if !known[a.Name] {
					logger.Warn("Constraint references unknown activity", "name", a.Name)
				}
				for other := range a.CooldownAfter {
					if !known[other] {
						logger.Warn("Cooldown references unknown activity",
							"name", a.Name, "after", other)
					}
				}
			}

			logger.Info("Constraints validation passed",
				"constraint_count", len(file.Activities),
				"activity_count", registry.Len(),
			)
			return nil
		},
	}
}
