package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mohs/mohs/internal/domain/mohs"
	"github.com/mohs/mohs/internal/platform/db"
)

func cptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpt",
		Short: "Print the Mohs procedure codes for a location and stage count",
		Long: `Derive Mohs micrographic surgery CPT codes without a database.

Examples:
  mohs-server cpt --location "left nasal ala" --stages 2
  mohs-server cpt --location back --stages 3 --blocks 17`,
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			stages, _ := cmd.Flags().GetInt("stages")
			blocks, _ := cmd.Flags().GetInt("blocks")

			if strings.TrimSpace(location) == "" {
				return fmt.Errorf("--location is required")
			}
			if stages < 0 || blocks < 0 {
				return fmt.Errorf("--stages and --blocks must not be negative")
			}
			printCodes(cmd.OutOrStdout(), location, mohs.CalculateCodes(location, stages, blocks))
			return nil
		},
	}
	cmd.Flags().String("location", "", "Tumor location, e.g. \"right helix\"")
	cmd.Flags().Int("stages", 1, "Number of stages performed")
	cmd.Flags().Int("blocks", 0, "Total tissue blocks across all stages")
	return cmd
}

func printCodes(w io.Writer, location string, codes []string) {
	family := "trunk/arms/legs"
	if mohs.IsComplexLocation(location) {
		family = "head/neck/hands/feet/genitalia"
	}
	heading := color.New(color.Bold)
	code := color.New(color.FgCyan)

	fmt.Fprintf(w, "%s %s (%s)\n", heading.Sprint("Location:"), location, family)
	if len(codes) == 0 {
		fmt.Fprintln(w, "No billable stages.")
		return
	}

	units := lo.CountValues(codes)
	for _, c := range lo.Uniq(codes) {
		desc := mohs.DefaultCPTDescriptions[c]
		if units[c] > 1 {
			fmt.Fprintf(w, "  %s x%d  %s\n", code.Sprint(c), units[c], desc)
			continue
		}
		fmt.Fprintf(w, "  %s  %s\n", code.Sprint(c), desc)
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the operative report for a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			caseArg, _ := cmd.Flags().GetString("case")

			caseID, err := uuid.Parse(caseArg)
			if err != nil {
				return fmt.Errorf("--case must be a case id: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			if err := db.ValidateTenantID(tenant); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := mohs.NewService(mohs.NewRepoPG(pool), newLogger(cfg))
			report, err := svc.GenerateReport(ctx, tenant, caseID)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report.Text)
			return nil
		},
	}
	cmd.Flags().String("tenant", "", "Tenant identifier (default DEFAULT_TENANT)")
	cmd.Flags().String("case", "", "Case id")
	return cmd
}

// printReport writes the report text, highlighting section headings: lines
// that are entirely upper case.
func printReport(w io.Writer, text string) {
	heading := color.New(color.Bold, color.FgHiWhite)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if isHeading(line) {
			fmt.Fprintln(w, heading.Sprint(line))
			continue
		}
		fmt.Fprintln(w, line)
	}
}

func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && trimmed == line && strings.ToUpper(line) == line && strings.ContainsAny(line, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
