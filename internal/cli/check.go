package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CheckCmd runs the graph integrity checker and prints a report. Exits
// non-zero when enforcement fails under the configured policy.
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate graph integrity (orphans, cycles)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			d, err := loadDeps(cfg)
			if err != nil {
				return err
			}
			defer d.close()

			report, err := d.checker.Validate(cmd.Context(), d.store)
			if err != nil {
				return err
			}

			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()
			warn := color.New(color.FgYellow).SprintFunc()

			if len(report.OrphanObservations) == 0 {
				fmt.Printf("%s no orphan observations\n", ok("✓"))
			} else {
				fmt.Printf("%s %d orphan observations\n", bad("✗"), len(report.OrphanObservations))
				for _, id := range report.OrphanObservations {
					fmt.Printf("    %s\n", id)
				}
			}

			if len(report.OrphanEntities) == 0 {
				fmt.Printf("%s no orphan entities\n", ok("✓"))
			} else {
				marker := warn("!")
				if d.checker.OrphanEntities == "error" {
					marker = bad("✗")
				}
				fmt.Printf("%s %d orphan entities (policy: %s)\n", marker, len(report.OrphanEntities), d.checker.OrphanEntities)
				for _, id := range report.OrphanEntities {
					fmt.Printf("    %s\n", id)
				}
			}

			if len(report.Cycles) == 0 {
				fmt.Printf("%s no relationship cycles\n", ok("✓"))
			} else {
				fmt.Printf("%s %d relationship cycles\n", bad("✗"), len(report.Cycles))
				for _, cycle := range report.Cycles {
					fmt.Printf("    %v\n", cycle)
				}
			}

			return d.checker.Enforce(report)
		},
	}
	addConfigFlags(cmd)
	return cmd
}
