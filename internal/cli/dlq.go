package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDLQCmd создаёт группу команд для журнала dead-letter.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered messages",
	}

	cmd.AddCommand(
		newDLQListCmd(clientFn, outputFn),
		newDLQShowCmd(clientFn, outputFn),
		newDLQReplayCmd(clientFn, outputFn),
	)

	return cmd
}

var deadLetterHeaders = []string{"ID", "TOPIC", "MESSAGE_ID", "TYPE", "ATTEMPTS", "STATUS", "CREATED"}

func deadLetterRow(d DeadLetterResponse) []string {
	return []string{d.ID, d.Topic, d.MessageID, d.MessageType, strconv.Itoa(d.Attempts), d.Status, d.CreatedAt}
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListDeadLettersOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			letters, total, err := client.ListDeadLetters(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(letters))
			for i, d := range letters {
				rows[i] = deadLetterRow(d)
			}

			out.Print(deadLetterHeaders, rows, letters)
			if !out.jsonMode {
				out.Text("\n%d of %d\n", len(letters), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Topic, "topic", "", "Filter by topic")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (DEAD, REPLAYED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newDLQShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a dead-lettered message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			dl, err := client.GetDeadLetter(args[0])
			if err != nil {
				return err
			}

			out.Print(deadLetterHeaders, [][]string{deadLetterRow(*dl)}, dl)
			if !out.jsonMode {
				if dl.LastError != "" {
					out.Text("\nLast error: %s\n", dl.LastError)
				}
				out.Text("\nPayload:\n%s\n", dl.Payload)
			}
			return nil
		},
	}
}

func newDLQReplayCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "replay ID",
		Short: "Republish a dead-lettered message with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			dl, err := client.ReplayDeadLetter(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Replayed %s to %s", dl.ID, dl.RoutingKey))
			out.Print(deadLetterHeaders, [][]string{deadLetterRow(*dl)}, dl)
			return nil
		},
	}
}
