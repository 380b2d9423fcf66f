package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRollbackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback <batch-id>",
		Short: "Undo a finished batch",
		Long: `Undo a finished batch: delete its destination objects (best-effort),
clear destination references, and mark the batch rolled back.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			if !yes && !confirm(fmt.Sprintf("Roll back batch %s and delete its destination objects?", args[0])) {
				fmt.Println("Aborted.")

				return
			}

			p, closePipeline, err := openPipeline(ctx)
			if err != nil {
				fatal("setup", err)
			}
			defer closePipeline()

			result, err := p.orch.RollbackBatch(ctx, args[0])
			if err != nil {
				fatal("rollback batch", err)
			}

			output(result, result.BatchID)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes"
}
