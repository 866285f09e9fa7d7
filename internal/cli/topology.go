package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewTopologyCmd создаёт команду вывода топологии брокера.
func NewTopologyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show exchanges and queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			topo, err := client.GetTopology()
			if err != nil {
				return err
			}

			if !out.jsonMode {
				out.Text("Exchanges: %s, %s, %s\n", topo.Exchanges.Queue, topo.Exchanges.Retry, topo.Exchanges.DeadLetter)
				out.Text("Retry: max %d attempts, delay %s\n\n",
					topo.MaxRetryAttempts, time.Duration(topo.RetryDelayMs)*time.Millisecond)
			}

			headers := []string{"TOPIC", "ROUTING_KEY", "QUEUE", "RETRY_QUEUE", "DEAD_LETTER_QUEUE"}
			rows := make([][]string, len(topo.Registrations))
			for i, r := range topo.Registrations {
				rows[i] = []string{r.Topic, r.RoutingKey, r.Queues.Primary, r.Queues.Retry, r.Queues.DeadLetter}
			}

			out.Print(headers, rows, topo)
			return nil
		},
	}
}

// NewQueuesCmd создаёт команду вывода глубины очередей.
func NewQueuesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show message and consumer counts per queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.ListQueues()
			if err != nil {
				return err
			}

			headers := []string{"TOPIC", "QUEUE", "MESSAGES", "CONSUMERS", "ERROR"}
			rows := make([][]string, len(stats))
			for i, s := range stats {
				rows[i] = []string{s.Topic, s.Queue, strconv.Itoa(s.Messages), strconv.Itoa(s.Consumers), s.Error}
			}

			out.Print(headers, rows, stats)
			return nil
		},
	}
}
