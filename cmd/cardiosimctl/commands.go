package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/api"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/config"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/content"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/store"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/triage"
)

var (
	jsonOutput bool
	verbose    bool
)

func newRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "cardiosimctl",
		Short:         "Inspect and exercise the CardioSim AI backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newClassifyCommand())
	root.AddCommand(newTemplatesCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newResolveCommand())
	root.AddCommand(newResolutionsCommand())
	root.AddCommand(newArtifactsCommand())
	return root
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newClassifyCommand() *cobra.Command {
	var in triage.ClinicalInput

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a clinical presentation into a triage bucket",
		Example: `  cardiosimctl classify --ecg "ST elevation in V1-V4" --troponin 3.2
  cardiosimctl classify --ecg "T-wave inversion" --troponin 0.2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback, err := content.Load()
			if err != nil {
				return err
			}
			bucket := triage.Classify(in)
			diagnosis := fallback.Diagnosis(bucket)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"bucket":    bucket,
					"diagnosis": diagnosis,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bucket:    %s\ndiagnosis: %s\nartery:    %s\nurgency:   %s\n",
				bucket, diagnosis.Diagnosis, diagnosis.ArteryID, diagnosis.Urgency)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ECGFindings, "ecg", "", "ECG findings")
	cmd.Flags().Float64Var(&in.TroponinLevel, "troponin", 0, "troponin level (ng/mL)")
	cmd.Flags().IntVar(&in.Age, "age", 0, "patient age")
	cmd.Flags().IntVar(&in.ChestPainDuration, "pain-minutes", 0, "chest pain duration in minutes")
	_ = cmd.MarkFlagRequired("ecg")
	return cmd
}

func newTemplatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the procedure video templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback, err := content.Load()
			if err != nil {
				return err
			}
			templates := fallback.VideoProcedures()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), templates)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROCEDURE\tFRAMES\tTITLE")
			for _, t := range templates {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Procedure, len(t.Frames), t.Title)
			}
			return tw.Flush()
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"config":  cfg.Redacted(),
				"offline": cfg.OfflineDomains(),
			})
		},
	}
}

func newResolveCommand() *cobra.Command {
	var (
		domain      string
		prompt      string
		fallbackKey string
		procedure   string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run one text resolution through the provider cascade",
		Long: `Run one text-completion request through the configured provider cascade.

Offline domains and unconfigured providers resolve to fallback content, so the
command is safe to run without any credentials.`,
		Example: `  cardiosimctl resolve --domain explain --fallback-key patient --prompt "Explain STEMI"
  cardiosimctl resolve --domain mentor --fallback-key guide --prompt "How do I cross the lesion?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return errors.New("--prompt is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fallback, err := content.Load()
			if err != nil {
				return err
			}
			sink, err := api.BuildArtifactStore(cfg.Artifacts)
			if err != nil {
				return err
			}
			registry, err := api.BuildRegistry(cfg, sink)
			if err != nil {
				return err
			}
			controller, err := cascade.NewController(registry, fallback,
				cascade.WithLogger(logrus.StandardLogger()),
				cascade.WithOffline(cfg.Offline),
				cascade.WithPollBudget(ai.CapabilityVideo, cfg.Video.PollInterval, cfg.Video.MaxPolls),
				cascade.WithPollBudget(ai.CapabilityImage, cfg.Image.PollInterval, cfg.Image.MaxPolls),
			)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			res := controller.Resolve(ctx, ai.NewRequest(ai.CapabilityText, ai.Domain(domain),
				ai.WithPrompt(prompt),
				ai.WithFallbackKey(fallbackKey),
				ai.WithProcedure(procedure),
			))
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"provenance": res.Provenance,
					"elapsed_ms": res.Elapsed.Milliseconds(),
					"attempts":   res.Attempts,
					"artifact":   res.Artifact,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provenance: %s (%s)\n", res.Provenance, res.Elapsed.Round(time.Millisecond))
			for _, a := range res.Attempts {
				line := fmt.Sprintf("  %s: %s", a.Provider, a.Outcome)
				if a.Error != "" {
					line += " - " + a.Error
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), res.Artifact.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", string(ai.DomainExplain), "request domain (diagnosis, explain, mentor, emergency, ...)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().StringVar(&fallbackKey, "fallback-key", "", "key used to select fallback content")
	cmd.Flags().StringVar(&procedure, "procedure", "", "procedure name")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}

func newResolutionsCommand() *cobra.Command {
	var (
		dbPath     string
		domain     string
		provenance string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "resolutions",
		Short: "Show recent resolutions from the audit database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openAudit(dbPath)
			if err != nil {
				return err
			}
			defer closeAudit(db)

			rows, total, err := db.ListResolutions(store.ResolutionQuery{Domain: domain, Provenance: provenance, Limit: limit})
			if err != nil {
				return err
			}
			rate, err := db.FallbackRate(domain)
			if err != nil {
				return err
			}
			if jsonOutput {
				items := make([]api.ResolutionDTO, 0, len(rows))
				for _, row := range rows {
					items = append(items, api.ResolutionFromModel(row))
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"items":         items,
					"total":         total,
					"fallback_rate": rate,
				})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tDOMAIN\tPROVENANCE\tELAPSED\tREQUEST")
			for _, row := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dms\t%s\n", row.ID, row.CreatedAt.Format(time.RFC3339),
					row.Domain, row.Provenance, row.ElapsedMs, row.RequestID)
			}
			fmt.Fprintf(tw, "\n%d total, fallback rate %.1f%%\n", total, rate*100)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database (defaults to AUDIT_DB_PATH)")
	cmd.Flags().StringVar(&domain, "domain", "", "filter by domain")
	cmd.Flags().StringVar(&provenance, "provenance", "", "filter by provenance")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}

func newArtifactsCommand() *cobra.Command {
	var (
		dbPath    string
		procedure string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List generated media recorded in the audit database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openAudit(dbPath)
			if err != nil {
				return err
			}
			defer closeAudit(db)

			rows, err := db.ListArtifacts(procedure, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPROCEDURE\tPROVIDER\tTYPE\tLOCATION")
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.CreatedAt.Format(time.RFC3339),
					row.Procedure, row.Provider, row.MIMEType, row.Location)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database (defaults to AUDIT_DB_PATH)")
	cmd.Flags().StringVar(&procedure, "procedure", "", "filter by procedure")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}

// openAudit opens the audit database at path, or at AUDIT_DB_PATH when path
// is empty.
func openAudit(path string) (*store.Database, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path = cfg.AuditDBPath
	}
	if path == "" {
		return nil, errors.New("audit database disabled")
	}
	db, err := store.Open(path, true)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func closeAudit(db *store.Database) {
	if err := db.Close(); err != nil {
		logrus.WithError(err).Warn("close database")
	}
}
