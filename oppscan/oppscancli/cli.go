package oppscancli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/switchrx/oppscan-app/conf"
	"github.com/switchrx/oppscan-app/oppscan/constants"
	"github.com/switchrx/oppscan-app/oppscan/database"
	"github.com/switchrx/oppscan-app/oppscan/matcher"
	"github.com/switchrx/oppscan-app/oppscan/models/postgres"
	"github.com/switchrx/oppscan-app/oppscan/service"
	"github.com/switchrx/oppscan-app/oppscanworker/queueing"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "oppscan"
const Usage = "Pharmacy opportunity scanning engine CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	var triggerID uint
	var bin, group, migrationPath string
	app.Commands = []cli.Command{
		{
			Name:     "scan-trigger",
			Category: "Scanning",
			Usage:    "Run a full scan for one trigger",
			Flags: []cli.Flag{
				cli.UintFlag{
					Name:        "trigger-id",
					Usage:       "ID of the trigger to scan",
					Destination: &triggerID,
				},
			},
			Action: func(c *cli.Context) error {
				if triggerID == 0 {
					return errors.New("trigger-id is required")
				}
				return withService(func(svc service.Service) error {
					result, err := svc.ScanTrigger(context.Background(), triggerID)
					if err != nil {
						return err
					}
					printScanResult(app, result)
					return nil
				})
			},
		},
		{
			Name:     "scan-all",
			Category: "Scanning",
			Usage:    "Scan every enabled trigger, then deduplicate and reconcile data quality issues",
			Action: func(c *cli.Context) error {
				return withService(func(svc service.Service) error {
					results, err := svc.ScanAll(context.Background())
					for _, result := range results {
						printScanResult(app, result)
					}
					return err
				})
			},
		},
		{
			Name:     "enqueue-scans",
			Category: "Scanning",
			Usage:    "Queue one scan job per enabled trigger for the worker pool",
			Action: func(c *cli.Context) error {
				db := database.GetDbConnection()
				defer db.Close()

				triggers, err := postgres.NewRepository(db).GetEnabledTriggers(context.Background())
				if err != nil {
					return err
				}

				enqueuer, err := queueing.NewEnqueuer(conf.GetEnv("QUEUE_DATABASE_URL"))
				if err != nil {
					return err
				}
				defer enqueuer.Close()

				ids := make([]uint, len(triggers))
				for i, t := range triggers {
					ids[i] = t.ID
				}
				if err := enqueuer.EnqueueScanJobs(ids); err != nil {
					return err
				}

				fmt.Fprintf(app.Writer, "Enqueued %d scan jobs\n", len(ids))
				return nil
			},
		},
		{
			Name:     "deduplicate",
			Category: "Maintenance",
			Usage:    "Collapse duplicate live opportunities",
			Action: func(c *cli.Context) error {
				return withService(func(svc service.Service) error {
					result, err := svc.Deduplicate(context.Background())
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Deduplicated %d groups, removed %d records\n",
						result.GroupsProcessed, result.Removed)
					for _, conflict := range result.Conflicts {
						fmt.Fprintf(app.Writer, "Conflict: opportunity %d (%s) duplicates survivor %d and needs manual review\n",
							conflict.OpportunityID, conflict.Status, conflict.SurvivorID)
					}
					return nil
				})
			},
		},
		{
			Name:     "quality-gate",
			Category: "Maintenance",
			Usage:    "Reconcile data quality issues for trigger-created opportunities",
			Action: func(c *cli.Context) error {
				return withService(func(svc service.Service) error {
					result, err := svc.RunQualityGate(context.Background())
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Checked %d opportunities: %d issues created, %d resolved\n",
						result.OpportunitiesChecked, result.IssuesCreated, result.IssuesResolved)
					return nil
				})
			},
		},
		{
			Name:     "validate-triggers",
			Category: "Maintenance",
			Usage:    "Check every enabled trigger for configuration errors",
			Action: func(c *cli.Context) error {
				db := database.GetDbConnection()
				defer db.Close()

				triggers, err := postgres.NewRepository(db).GetEnabledTriggers(context.Background())
				if err != nil {
					return err
				}

				invalid := matcher.ValidateCatalog(triggers)
				if len(invalid) == 0 {
					fmt.Fprintf(app.Writer, "All %d enabled triggers are valid\n", len(triggers))
					return nil
				}

				ids := make([]uint, 0, len(invalid))
				for id := range invalid {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					fmt.Fprintf(app.Writer, "%s\n", invalid[id].Error())
				}
				return fmt.Errorf("%d of %d triggers failed validation", len(invalid), len(triggers))
			},
		},
		{
			Name:     "mark-coverage-excluded",
			Category: "Maintenance",
			Usage:    "Administratively exclude a payer from a trigger's coverage, independent of claim evidence",
			Flags: []cli.Flag{
				cli.UintFlag{
					Name:        "trigger-id",
					Usage:       "ID of the trigger",
					Destination: &triggerID,
				},
				cli.StringFlag{
					Name:        "bin",
					Usage:       "Insurance BIN to exclude",
					Destination: &bin,
				},
				cli.StringFlag{
					Name:        "group",
					Usage:       "Insurance group to exclude (omit to exclude the whole BIN)",
					Destination: &group,
				},
			},
			Action: func(c *cli.Context) error {
				if triggerID == 0 || strings.TrimSpace(bin) == "" {
					return errors.New("trigger-id and bin are required")
				}

				db := database.GetDbConnection()
				defer db.Close()

				var groupID *string
				if strings.TrimSpace(group) != "" {
					groupID = &group
				}

				if err := postgres.NewRepository(db).MarkCoverageExcluded(context.Background(), triggerID, bin, groupID); err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Marked coverage excluded for trigger %d, BIN %s\n", triggerID, bin)
				return nil
			},
		},
		{
			Name:     "migrate",
			Category: "Maintenance",
			Usage:    "Apply database migrations",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "path",
					Usage:       "Path to the migration files",
					Value:       "db/migrations/oppscan",
					Destination: &migrationPath,
				},
			},
			Action: func(c *cli.Context) error {
				m, err := migrate.New("file://"+migrationPath, conf.GetEnv("DATABASE_URL"))
				if err != nil {
					return err
				}
				if err := m.Up(); err != nil && err != migrate.ErrNoChange {
					return err
				}
				srcErr, dbErr := m.Close()
				if srcErr != nil {
					return srcErr
				}
				return dbErr
			},
		},
	}
	return app
}

// withService builds a fully wired Service over a fresh database connection
// and hands it to fn, closing the connection afterwards.
func withService(fn func(svc service.Service) error) error {
	cfg, err := service.LoadConfig()
	if err != nil {
		return err
	}

	db := database.GetDbConnection()
	defer db.Close()

	svc := service.NewService(postgres.NewRepository(db),
		postgres.NewTransactor(db), postgres.NewAdvisoryLocker(db), cfg)
	return fn(svc)
}

func printScanResult(app *cli.App, result *service.ScanResult) {
	if result.Err != nil {
		fmt.Fprintf(app.Writer, "Trigger %d (%s): FAILED: %s\n", result.TriggerID, result.TriggerName, result.Err.Error())
		return
	}
	fmt.Fprintf(app.Writer, "Trigger %d (%s): %d matched, %d excluded, %d coverage records, %d created, %d refreshed, %d skipped\n",
		result.TriggerID, result.TriggerName, result.MatchedClaims, result.ExcludedClaims,
		result.CoverageRecords, result.OpportunitiesCreated, result.OpportunitiesRefreshed, result.OpportunitiesSkipped)
}
