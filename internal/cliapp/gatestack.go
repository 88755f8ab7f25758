package cliapp

import (
	"github.com/spf13/cobra"

	"github.com/constellation2/truthcore/internal/gate"
	"github.com/constellation2/truthcore/internal/stage/gatestack"
)

func newGateStackCmd() *cobra.Command {
	var registryPath string
	cmd := &cobra.Command{
		Use:   "gate-stack",
		Short: "Write the gate_stack_verdict artifact for the given day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadStageContext()
			if err != nil {
				return err
			}
			path := registryPath
			if path == "" {
				path = sc.cfg.GateRegistryPath
			}
			reg, err := gate.LoadRegistryYAML(path)
			if err != nil {
				return err
			}
			art, runErr := gatestack.Run(sc.day, sc.cfg.TruthRoot, *reg, sc.prod, sc.validate("#GateStackVerdict"))
			return sc.finish(gatestack.SchemaID, art, runErr)
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry-path", "", "path to the gate hierarchy registry YAML (defaults to config's gate_registry_path)")
	return cmd
}
