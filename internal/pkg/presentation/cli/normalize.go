package cli

import (
	"bytes"
	"fmt"

	"github.com/diwise/context-bridge/pkg/ngsild/snapshot"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Convert an entity, or a list of entities, into plain keyValues snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runNormalize,
	}

	cmd.Flags().StringSlice("attrs", nil, "Only include these attributes (id and type are always kept)")
	cmd.Flags().Bool("normalized", false, "Keep full property and relationship objects")
	cmd.Flags().Bool("context", false, "Include the @context of each entity")

	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	attrs, _ := cmd.Flags().GetStringSlice("attrs")
	normalized, _ := cmd.Flags().GetBool("normalized")
	withContext, _ := cmd.Flags().GetBool("context")

	body, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	options := []entities.KeyValuesOption{}
	if len(attrs) > 0 {
		options = append(options, entities.Attributes(attrs...))
	}
	if normalized {
		options = append(options, entities.Normalized())
	}
	if withContext {
		options = append(options, entities.IncludeContext())
	}

	var value any

	body = bytes.TrimSpace(body)
	if bytes.HasPrefix(body, []byte("[")) {
		value, err = entities.NewFromSlice(body)
	} else {
		value, err = entities.NewFromJSON(body)
	}
	if err != nil {
		return fmt.Errorf("parse entities: %w", err)
	}

	result, err := snapshot.TryNormalize(value, options...)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	return printJSON(cmd, result)
}
