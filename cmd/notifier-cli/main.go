// Notifier CLI — инструмент командной строки для admin API notifier-worker:
// журнал dead-letter, постановка писем в очередь, состояние брокера.
//
// Использование:
//
//	notifier [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	dlq       Журнал dead-letter (list, show, replay)
//	notify    Постановка уведомлений в очередь
//	topology  Exchanges и очереди
//	queues    Глубина очередей
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/notifier/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "notifier",
		Short:         "Notifier CLI: dead letters, notifications and broker state",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8082", "Worker admin API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDLQCmd(clientFn, outputFn),
		cli.NewNotifyCmd(clientFn, outputFn),
		cli.NewTopologyCmd(clientFn, outputFn),
		cli.NewQueuesCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
