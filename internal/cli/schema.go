package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// SchemaCmd manages the schema registry from the command line.
func SchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage entity-type schemas",
	}
	cmd.AddCommand(schemaRegisterCmd())
	cmd.AddCommand(schemaListCmd())
	return cmd
}

func schemaRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Publish a schema version from a YAML definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file flag is required")
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read schema file: %w", err)
			}
			var sch models.Schema
			if err := yaml.Unmarshal(data, &sch); err != nil {
				return fmt.Errorf("parse schema file: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			d, err := loadDeps(cfg)
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.registry.Register(cmd.Context(), sch); err != nil {
				return err
			}
			fmt.Printf("✓ Registered schema %s@%s (%d fields)\n",
				sch.EntityType, sch.SchemaVersion, len(sch.FieldDefinitions))
			return nil
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().StringP("file", "f", "", "YAML schema definition file")
	return cmd
}

func schemaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <entity_type>",
		Short: "List published schema versions for an entity type",
		Args:  cobra.ExactArgs(1),
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

			schemas, err := d.registry.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(schemas) == 0 {
				fmt.Printf("No schemas registered for %q.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tFIELDS\tPUBLISHED")
			for _, sch := range schemas {
				fmt.Fprintf(w, "%s\t%d\t%s\n",
					sch.SchemaVersion, len(sch.FieldDefinitions), sch.PublishedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	addConfigFlags(cmd)
	return cmd
}
