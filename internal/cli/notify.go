package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewNotifyCmd создаёт группу команд для отправки уведомлений.
func NewNotifyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Enqueue notifications",
	}

	cmd.AddCommand(newNotifySendCmd(clientFn, outputFn))

	return cmd
}

func newNotifySendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var typ string
	var to []string
	var kvs []string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Enqueue an email notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SendNotificationRequest{Type: typ, To: to}

			if len(kvs) > 0 {
				req.Context = make(map[string]string, len(kvs))
				for _, kv := range kvs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid context format %q, expected KEY=VALUE", kv)
					}
					req.Context[parts[0]] = parts[1]
				}
			}

			resp, err := client.SendNotification(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Notification %s queued for %s", resp.Type, strings.Join(resp.To, ", ")))
			if out.jsonMode {
				out.JSON(resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "Notification type (ACCOUNT_VERIFICATION, ACCOUNT_REGISTRATION, PASSWORD_RESET, EMAIL_VERIFICATION)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient address (repeatable)")
	cmd.Flags().StringSliceVar(&kvs, "context", nil, "Template values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("to")

	return cmd
}
