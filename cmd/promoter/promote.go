package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"promoter/internal/history"
	"promoter/internal/notify"
	"promoter/internal/promotion"

	"github.com/spf13/cobra"
)

var (
	promoteTarget      string
	promoteSnapshot    string
	promoteStarted     string
	promoteTriggeredBy string
	promoteUser        string
	promoteNotify      bool
	promoteJSON        bool
	promoteVerbose     bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote BUILD_NAME BUILD_NUMBER",
	Short: "Promote a staged build",
	Long: `Promote a staged build to a release repository.

This command will:
- Find the staged build (use --started when several runs share a number)
- Copy every artifact to the target repository under its release path
- Rewrite Ivy and POM descriptors to the release versions
- Record the release build BUILD_NUMBER-r

Nothing is left behind when the promotion fails.

Example:
  promoter promote acme 7 --target libs-release-local --snapshot SNAPSHOT`,
	Args: cobra.ExactArgs(2),
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().StringVarP(&promoteTarget, "target", "t", "", "Target release repository")
	promoteCmd.Flags().StringVarP(&promoteSnapshot, "snapshot", "s", "SNAPSHOT", "Snapshot expression identifying pre-release versions")
	promoteCmd.Flags().StringVar(&promoteStarted, "started", "", "Start time of the staged build run")
	promoteCmd.Flags().StringVar(&promoteTriggeredBy, "triggered-by", getEnvOrDefault("PROMOTER_CI_USER", ""), "CI user recorded in the release status")
	promoteCmd.Flags().StringVarP(&promoteUser, "user", "u", getEnvOrDefault("USER", ""), "User recorded in the release status")
	promoteCmd.Flags().BoolVar(&promoteNotify, "notify", true, "Run the configured notifications after success")
	promoteCmd.Flags().BoolVar(&promoteJSON, "json", false, "Print the result as JSON")
	promoteCmd.Flags().BoolVarP(&promoteVerbose, "verbose", "v", false, "Log every promotion step")
	_ = promoteCmd.MarkFlagRequired("target")
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := consoleLogger(promoteVerbose)

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	hist, err := history.NewHistory(cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	p := promotion.NewPromoter(svc.builds, svc.store, promotion.StaticIdentity(promoteUser), logger)
	p.Resolve = cfg.Resolver()
	p.Targets = svc.repos.IsTarget

	req := promotion.Request{
		BuildName:          args[0],
		BuildNumber:        args[1],
		BuildStarted:       promoteStarted,
		SnapshotExpression: promoteSnapshot,
		TargetRepository:   promoteTarget,
		TriggeredBy:        promoteTriggeredBy,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	res := p.Promote(ctx, req)
	completed := time.Now()
	duration := completed.Sub(start).Seconds()

	record := &history.PromotionRecord{
		AttemptID:       res.AttemptID,
		BuildName:       req.BuildName,
		BuildNumber:     req.BuildNumber,
		Target:          req.TargetRepository,
		StatusCode:      res.Status,
		Artifacts:       res.Artifacts,
		StartedAt:       start,
		CompletedAt:     &completed,
		DurationSeconds: &duration,
		User:            &promoteUser,
		Message:         &res.Message,
	}
	if _, err := hist.RecordPromotion(ctx, record); err != nil {
		logger.Error("Failed to record promotion history", "error", err)
	}

	if res.OK() && promoteNotify {
		dispatcher, err := newDispatcher(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to configure notifications: %w", err)
		}
		if failed := dispatcher.Dispatch(ctx, notify.NewEvent(req, res, promoteUser)); failed > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d notification(s) failed\n", failed)
		}
	}

	if promoteJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Println(res.Message)
		if res.Missing > 0 {
			fmt.Printf("  %d artifact(s) were not found in the store and kept unchanged\n", res.Missing)
		}
	}

	if !res.OK() {
		return fmt.Errorf("promotion failed with status %d", res.Status)
	}
	return nil
}
