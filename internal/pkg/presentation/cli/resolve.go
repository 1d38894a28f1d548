package cli

import (
	"encoding/json"
	"fmt"

	"github.com/diwise/context-bridge/pkg/ngsild/reference"
	"github.com/diwise/context-bridge/pkg/ngsild/registry"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/spf13/cobra"
)

// offline stands in for a broker connection when resolving snapshots locally
type offline struct {
	registry *registry.Registry
}

func (o *offline) EntityTypes() types.Registry {
	return o.registry
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Rehydrate a keyValues snapshot into a full entity",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResolve,
	}

	cmd.Flags().StringSlice("types", nil, "Entity types known to the resolver (required)")
	cmd.Flags().String("type", "", "Resolve as this type instead of the one in the id")
	cmd.Flags().String("tenant", "", "Tenant the rehydrated entity is bound to")

	cmd.MarkFlagRequired("types")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	typeNames, _ := cmd.Flags().GetStringSlice("types")
	asType, _ := cmd.Flags().GetString("type")
	tenant, _ := cmd.Flags().GetString("tenant")

	body, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	snapshot := map[string]any{}
	if err = json.Unmarshal(body, &snapshot); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	factoryOptions := []registry.FactoryOption{}
	if tenant != "" {
		factoryOptions = append(factoryOptions, registry.Tenant(tenant))
	}

	conn := &offline{registry: registry.New()}
	for _, name := range typeNames {
		conn.registry.Register(name, registry.NewFactory(name, factoryOptions...))
	}

	e, err := reference.TryResolve(conn, snapshot, reference.AsType(asType))
	if err != nil {
		if reference.IsMiss(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "no match: %s\n", err.Error())
			return nil
		}
		return err
	}

	return printJSON(cmd, e)
}
