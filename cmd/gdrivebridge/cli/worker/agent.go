package worker

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NiksRock/GDriveBridge/internal/agent"
	config "github.com/NiksRock/GDriveBridge/internal/config/worker"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the GDriveBridge worker agent",
		Long:  "Start the worker agent: consumes queued transfer, verification, deletion and quota-resume tasks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWorkerConfig()
			if err != nil {
				return fmt.Errorf("failed to load worker configuration: %w", err)
			}

			agent := agent.NewAgent(cfg)
			return agent.Serve(context.Background())
		},
	}

	return cmd
}
