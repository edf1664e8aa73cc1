package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruslano69/refsync/pkg/events"
	"github.com/ruslano69/refsync/pkg/migrate"
	"github.com/ruslano69/refsync/pkg/progress"
	"github.com/ruslano69/refsync/pkg/report"
	"github.com/ruslano69/refsync/pkg/resultlog"
	"github.com/ruslano69/refsync/pkg/snapshot"
	"github.com/ruslano69/refsync/pkg/stores"

	// Store registrations
	_ "github.com/ruslano69/refsync/pkg/stores/memory"
	_ "github.com/ruslano69/refsync/pkg/stores/mssql"
	_ "github.com/ruslano69/refsync/pkg/stores/mysql"
	_ "github.com/ruslano69/refsync/pkg/stores/postgres"
	_ "github.com/ruslano69/refsync/pkg/stores/sqlite"
)

func main() {
	flags := ParseFlags()

	if *flags.Version {
		PrintVersion()
		os.Exit(0)
	}
	if *flags.Help {
		PrintHelp()
		os.Exit(0)
	}
	if *flags.CreatePlan {
		createPlanTemplate()
		return
	}

	if !commandWasSpecified(flags) {
		PrintHelp()
		os.Exit(1)
	}

	// Validate-only command
	if *flags.Validate != "" {
		plan, err := migrate.LoadPlan(*flags.Validate)
		if err != nil {
			fatal("Invalid plan: %v", err)
		}
		fmt.Printf("✓ Plan is valid: %s (%d entities, %s -> %s)\n",
			plan.Name, len(plan.Entities), plan.Source.Type, plan.Target.Type)
		return
	}

	planPath := *flags.Run
	forceDryRun := *flags.DryRun
	if *flags.Preview != "" {
		planPath = *flags.Preview
		forceDryRun = true
	}

	plan, err := migrate.LoadPlan(planPath)
	if err != nil {
		fatal("Failed to load plan: %v", err)
	}
	if forceDryRun {
		plan.DryRun = true
	}
	if *flags.Clean {
		plan.CleanTarget = true
	}
	if *flags.Report != "" {
		plan.Report.Destination = *flags.Report
	}
	if *flags.Snapshot != "" {
		plan.Snapshot.Destination = *flags.Snapshot
	}
	if *flags.Parallel > 0 {
		plan.Performance.MaxParallel = *flags.Parallel
	}
	if *flags.Batch > 0 {
		plan.Performance.BatchSize = *flags.Batch
	}
	if *flags.VerifyChecksum {
		plan.Verify.Checksum = true
	}

	// Graceful shutdown on Ctrl+C
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runPlan(ctx, plan, *flags.Verbose); err != nil {
		fatal("Migration failed: %v", err)
	}
}

// runPlan connects both stores and executes the plan with all
// configured integrations wired in
func runPlan(ctx context.Context, plan *migrate.Plan, verbose bool) error {
	fmt.Printf("Migration plan: %s\n", plan.Name)
	if plan.DryRun {
		fmt.Println("Mode: DRY-RUN (no writes to target)")
	}

	source, err := stores.New(ctx, plan.Source.ToStores())
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer source.Close(ctx)
	fmt.Printf("✓ Connected to source (%s)\n", source.StoreType())

	target, err := stores.New(ctx, plan.Target.ToStores())
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	defer target.Close(ctx)
	fmt.Printf("✓ Connected to target (%s)\n", target.StoreType())

	migrator := migrate.New(plan, source, target)

	// Snapshot dump
	if plan.Snapshot.Destination != "" {
		writer, err := snapshot.NewWriter(plan.Snapshot.Destination)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		migrator.SetSnapshotWriter(writer)
		defer func() {
			if err := writer.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: snapshot close failed: %v\n", err)
			} else {
				fmt.Printf("✓ Snapshot written: %s (%d records)\n", plan.Snapshot.Destination, writer.Written())
			}
		}()
	}

	// Live events
	publisher, err := buildPublisher(plan)
	if err != nil {
		return err
	}
	if publisher != nil {
		if err := publisher.Connect(ctx); err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer publisher.Close()
		fmt.Printf("✓ Publishing events to %s\n", plan.Events.Type)
	}

	migrator.SetCallbacks(buildCallbacks(plan, publisher, verbose))

	result, runErr := migrator.Run(ctx)

	printResult(result)

	// Result log publishes both success and failure
	if plan.ResultLog.Type == "redis" {
		if err := publishResultLog(plan, result, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: result log failed: %v\n", err)
		} else {
			fmt.Printf("✓ Result published to redis (%s)\n", plan.ResultLog.Name)
		}
	}

	if plan.Report.Destination != "" {
		if err := report.WriteXLSX(result, plan.Report.Destination); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: report failed: %v\n", err)
		} else {
			fmt.Printf("✓ Report written: %s\n", plan.Report.Destination)
		}
	}

	return runErr
}

// buildPublisher creates the event publisher from plan config
func buildPublisher(plan *migrate.Plan) (events.Publisher, error) {
	switch plan.Events.Type {
	case "":
		return nil, nil
	case "kafka":
		return events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: plan.Events.Brokers,
			Topic:   plan.Events.Topic,
		})
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			Host:     plan.Events.Host,
			Port:     plan.Events.Port,
			User:     plan.Events.User,
			Password: plan.Events.Password,
			Queue:    plan.Events.Queue,
		})
	default:
		return nil, fmt.Errorf("unknown events type: %s", plan.Events.Type)
	}
}

// buildCallbacks wires console output and event publishing
func buildCallbacks(plan *migrate.Plan, publisher events.Publisher, verbose bool) migrate.Callbacks {
	return migrate.Callbacks{
		OnPhase: func(phase migrate.Phase, entity string) {
			if verbose {
				fmt.Printf("  [%s] %s\n", phase, entity)
			}
			if publisher != nil {
				ev := events.Event{
					Run:       plan.Name,
					Phase:     string(phase),
					Entity:    entity,
					Timestamp: time.Now(),
				}
				if err := publisher.Publish(context.Background(), ev); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: event publish failed: %v\n", err)
				}
			}
		},
		OnProgress: func(entity string, phase migrate.Phase, snap progress.Snapshot) {
			eta := "unknown"
			if snap.RemainingKnown {
				eta = snap.Remaining.Round(time.Second).String()
			}
			fmt.Printf("  %s: %d/%d (%.1f%%) at %.0f rec/s, ETA %s\n",
				entity, snap.Processed, snap.Total, snap.Percent(), snap.RatePerSecond, eta)

			if publisher != nil {
				ev := events.Event{
					Run:       plan.Name,
					Phase:     string(phase),
					Entity:    entity,
					Timestamp: time.Now(),
					Progress:  events.FromSnapshot(snap),
				}
				if err := publisher.Publish(context.Background(), ev); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: event publish failed: %v\n", err)
				}
			}
		},
	}
}

// publishResultLog pushes the run outcome to Redis
func publishResultLog(plan *migrate.Plan, result *migrate.RunResult, runErr error) error {
	pub := resultlog.NewRedisPublisher(resultlog.Config{
		Address:  plan.ResultLog.Address,
		Name:     plan.ResultLog.Name,
		Password: plan.ResultLog.Password,
		DB:       plan.ResultLog.DB,
		TTL:      plan.ResultLog.TTL,
	})
	defer pub.Close()

	state := resultlog.RunState{
		Plan:       result.Plan,
		DryRun:     result.DryRun,
		StartedAt:  result.StartedAt,
		FinishedAt: result.EndedAt,
		DurationMs: result.Duration().Milliseconds(),
		Written:    result.TotalWritten(),
		Failed:     result.TotalFailed(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return pub.Publish(ctx, state, runErr)
}

// printResult prints the per-entity summary table
func printResult(result *migrate.RunResult) {
	fmt.Println()
	if result.Success {
		fmt.Printf("✓ Migration completed in %s\n", result.Duration().Round(time.Millisecond))
	} else {
		fmt.Printf("✗ Migration failed at phase %s: %s\n", result.Phase, result.Error)
	}

	for entity, n := range result.Deleted {
		fmt.Printf("  cleaned %s: %d deleted\n", entity, n)
	}

	for _, er := range result.Entities {
		fmt.Printf("  %s: extracted=%d created=%d updated=%d skipped=%d failed=%d",
			er.Entity, er.Extracted, er.Created, er.Updated, er.Skipped, er.Failed)
		if er.Duplicates > 0 {
			fmt.Printf(" duplicates=%d", er.Duplicates)
		}
		if !result.DryRun {
			if er.CountMatch {
				fmt.Printf(" counts=ok")
			} else {
				fmt.Printf(" counts=MISMATCH (target=%d)", er.TargetCount)
			}
			if er.ChecksumMatch != nil {
				if *er.ChecksumMatch {
					fmt.Printf(" checksum=ok")
				} else {
					fmt.Printf(" checksum=MISMATCH")
				}
			}
		}
		fmt.Println()

		for _, es := range er.Errors {
			fmt.Printf("    [%s] %s: %s\n", es.Phase, es.Key, es.Error)
		}
	}
}

// fatal prints error and exits
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
