package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NiksRock/GDriveBridge/internal/coord"
	"github.com/NiksRock/GDriveBridge/internal/transfer"
	"github.com/NiksRock/GDriveBridge/pkg/db/models"
)

func NewTransferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Manage migration jobs",
		Long:  "Create, inspect and control account-to-account migration jobs.",
	}

	cmd.AddCommand(newTransferScanCommand())
	cmd.AddCommand(newTransferCreateCommand())
	cmd.AddCommand(newTransferListCommand())
	cmd.AddCommand(newTransferStatusCommand())
	cmd.AddCommand(newTransferPauseCommand())
	cmd.AddCommand(newTransferResumeCommand())
	cmd.AddCommand(newTransferCancelCommand())
	cmd.AddCommand(newTransferWatchCommand())

	return cmd
}

func newTransferWatchCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live progress events",
		Long:  "Subscribe to the progress channel and print events as workers publish them. Interrupt to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			rdb := env.redisClient()
			defer rdb.Close()

			sub := rdb.Subscribe(ctx, env.cfg.Transfer.ProgressChannel)
			defer sub.Close()

			for msg := range sub.Channel() {
				var p coord.Progress
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				if jobID != "" && p.JobID != jobID {
					continue
				}
				fmt.Printf("%s  %-18s %d/%d  %s\n",
					p.JobID, p.Status, p.CompletedCount, p.TotalCount, p.CurrentFileName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "only show events for this job id")

	return cmd
}

func newTransferScanCommand() *cobra.Command {
	var userID, accountID string
	var roots []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Pre-scan a selection without creating a job",
		Long:  "Walk the selected source items read-only and report totals, depth and risk flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.service.Scan(ctx, userID, accountID, roots)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&accountID, "account", "", "source account id")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "source item id (repeatable)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("root")

	return cmd
}

func newTransferCreateCommand() *cobra.Command {
	var userID, sourceID, destID, destFolder, mode string
	var roots []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and enqueue a migration job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			job, err := env.service.CreateTransfer(ctx, transfer.CreateTransferRequest{
				UserID:               userID,
				SourceAccountID:      sourceID,
				DestinationAccountID: destID,
				DestinationFolderID:  destFolder,
				Mode:                 models.TransferMode(strings.ToUpper(mode)),
				RootFileIDs:          roots,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created transfer %s (%s): %d items, %d bytes\n",
				job.ID, job.Mode, job.TotalItems, job.TotalBytes)
			for _, warning := range job.Warnings {
				fmt.Printf("  warning: %s\n", warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&sourceID, "source", "", "source account id")
	cmd.Flags().StringVar(&destID, "dest", "", "destination account id")
	cmd.Flags().StringVar(&destFolder, "dest-folder", "", "destination folder id")
	cmd.Flags().StringVar(&mode, "mode", "copy", "transfer mode (copy or move)")
	cmd.Flags().StringSliceVar(&roots, "root", nil, "source item id (repeatable)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("dest")
	cmd.MarkFlagRequired("dest-folder")
	cmd.MarkFlagRequired("root")

	return cmd
}

func newTransferListCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List a user's migration jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			jobs, err := env.service.ListTransfers(ctx, userID)
			if err != nil {
				return err
			}

			for _, job := range jobs {
				fmt.Printf("%s  %-6s %-18s %d/%d items (%d failed)\n",
					job.ID, job.Mode, job.Status, job.CompletedItems, job.TotalItems, job.FailedItems)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newTransferStatusCommand() *cobra.Command {
	var userID string
	var showItems bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's progress and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			job, events, err := env.service.TransferStatus(ctx, userID, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Job %s (%s)\n", job.ID, job.Mode)
			fmt.Printf("  Status:    %s\n", job.Status)
			fmt.Printf("  Items:     %d/%d completed, %d failed\n", job.CompletedItems, job.TotalItems, job.FailedItems)
			fmt.Printf("  Bytes:     %d/%d\n", job.TransferredBytes, job.TotalBytes)
			for _, flag := range job.RiskFlags {
				fmt.Printf("  Risk:      %s\n", flag)
			}

			if showItems {
				fmt.Println("Items:")
				for _, item := range job.Items {
					line := fmt.Sprintf("  %-10s %s", item.Status, item.FileName)
					if item.ErrorMessage != "" {
						line += " (" + item.ErrorMessage + ")"
					}
					fmt.Println(line)
				}
			}

			fmt.Println("Events:")
			for _, event := range events {
				fmt.Printf("  %s  %-22s %s\n",
					event.CreatedAt.Format("2006-01-02 15:04:05"), event.Type, event.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().BoolVar(&showItems, "items", false, "include per-item status")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newTransferPauseCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "pause <job-id>",
		Short: "Pause a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.service.PauseTransfer(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Paused transfer %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newTransferResumeCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.service.ResumeTransfer(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Resumed transfer %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newTransferCancelCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.service.CancelTransfer(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancelled transfer %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")

	return cmd
}
