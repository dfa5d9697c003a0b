package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

func diagnoseCommand() *cli.Command {
	return &cli.Command{
		Name:   "diagnose",
		Usage:  "report which credential keys exist in which storage format",
		Action: diagnoseAction,
	}
}

func diagnoseAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	// Read-only on purpose: diagnose must not trigger a migration.
	reports, err := application.Migrator.Diagnose(ctx)
	if err != nil {
		return fmt.Errorf("diagnose failed: %w", err)
	}

	for _, report := range reports {
		var locations []string
		if report.Current {
			locations = append(locations, "current")
		}
		locations = append(locations, report.Legacy...)
		if len(locations) == 0 {
			locations = append(locations, "absent")
		}
		fmt.Printf("%-14s %s\n", report.Name, strings.Join(locations, ", "))
	}
	return nil
}

func wipeCommand() *cli.Command {
	return &cli.Command{
		Name:  "wipe",
		Usage: "delete every stored credential key, old and new formats",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "skip the confirmation prompt",
			},
		},
		Action: wipeAction,
	}
}

func wipeAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if !cmd.Bool("yes") {
		answer, err := promptLine("Delete all stored credentials? [y/N] ")
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := application.Migrator.WipeAll(ctx); err != nil {
		return fmt.Errorf("wipe failed: %w", err)
	}
	fmt.Println("All credential keys deleted")
	return nil
}
