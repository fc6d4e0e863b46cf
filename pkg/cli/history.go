package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/pippin/pkg/cli/config"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdHistory() *cli.Command {
	var limit int
	var activityName string
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Number of records to show",
			Value:       20,
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "activity",
			Aliases:     []string{"a"},
			Usage:       "Show only records of this activity",
			Destination: &activityName,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "Show recent activity records",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			episodes := episode.New(repo)

			var records []*model.ActivityRecord
			if activityName != "" {
				records, err = episodes.RecentByActivity(ctx, activityName, int(limit))
			} else {
				records, err = episodes.Recent(ctx, int(limit))
			}
			if err != nil {
				return goerr.Wrap(err, "failed to load history")
			}

			if len(records) == 0 {
				fmt.Println("no records")
				return nil
			}

			for _, rec := range records {
				printRecord(rec)
			}

			return nil
		},
	}
}

var (
	recordIDColor  = color.New(color.FgHiBlack)
	activityColor  = color.New(color.FgCyan, color.Bold)
	completedColor = color.New(color.FgGreen)
	failedColor    = color.New(color.FgRed)
	deltaColor     = color.New(color.FgYellow)
)

func printRecord(rec *model.ActivityRecord) {
	resultColor := completedColor
	if strings.HasPrefix(rec.Result, "failed") {
		resultColor = failedColor
	}

	fmt.Printf("%s  %s  %s  %s  %s%s\n",
		recordIDColor.Sprintf("#%d", rec.ID),
		rec.Timestamp.Local().Format(time.DateTime),
		activityColor.Sprint(rec.Activity),
		resultColor.Sprint(rec.Result),
		deltaColor.Sprint(formatDelta(rec.StateDelta)),
		formatDuration(rec.DurationSec),
	)
}

func formatDelta(delta map[string]int) string {
	if len(delta) == 0 {
		return "(no change)"
	}

	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, delta[k]))
	}
	return strings.Join(parts, " ")
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("  (%.1fs)", seconds)
}
