package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// modelCommands groups reconcile model maintenance commands.
func modelCommands(b *bankrecInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "manage reconcile models",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "create or replace reconcile models from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := os.Open(args[0])
			if err != nil {
				log.Fatalf("Error opening %s: %v", args[0], err)
			}
			defer f.Close()

			stored, err := b.bankrec.ImportReconcileModels(context.Background(), f)
			for _, m := range stored {
				fmt.Printf("%s\t%s\t%s\n", m.ModelID, m.RuleType, m.Name)
			}
			if err != nil {
				log.Fatalf("Error importing models: %v", err)
			}
		},
	})
	return cmd
}
