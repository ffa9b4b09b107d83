package main

import (
	"fmt"
	"os"

	"github.com/NiksRock/GDriveBridge/cmd/gdrivebridge/cli"
	"github.com/NiksRock/GDriveBridge/cmd/gdrivebridge/cli/client"
	"github.com/NiksRock/GDriveBridge/cmd/gdrivebridge/cli/worker"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{
		Version: version,
		Commit:  commit,
	})

	root.AddCommand(cli.NewVersionCommand())

	root.AddCommand(worker.NewAgentCommand())
	root.AddCommand(worker.NewConfigCommand())

	root.AddCommand(client.NewAccountCommand())
	root.AddCommand(client.NewTransferCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
