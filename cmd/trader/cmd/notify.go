package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Inspect and deliver queued notifications",
	Long: `The engine queues notifications in a JSON file and a dispatcher marks them
sent once delivered.

Subcommands:
  list   - Print queued notifications
  flush  - Deliver pending notifications to the log now`,
}

var notifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print queued notifications",
	Args:  cobra.NoArgs,
	RunE:  runNotifyList,
}

var notifyFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver pending notifications to the log",
	Args:  cobra.NoArgs,
	RunE:  runNotifyFlush,
}

var notifyPendingOnly bool

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyListCmd)
	notifyCmd.AddCommand(notifyFlushCmd)

	notifyListCmd.Flags().BoolVarP(&notifyPendingOnly, "pending", "p", false, "only unsent notifications")
}

func openQueue() (*notify.Queue, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return notify.NewQueue(cfg.Storage.Path(cfg.Storage.Notifications)), nil
}

func runNotifyList(cmd *cobra.Command, args []string) error {
	q, err := openQueue()
	if err != nil {
		return err
	}
	list := q.List
	if notifyPendingOnly {
		list = q.Pending
	}
	ns, err := list()
	if err != nil {
		return err
	}
	for _, n := range ns {
		mark := " "
		if n.Sent {
			mark = "x"
		}
		fmt.Printf("[%s] %s %-7s %-9s %s\n", mark, n.Timestamp.Local().Format("2006-01-02 15:04:05"), n.Level, n.Kind, n.Message)
	}
	if len(ns) == 0 {
		fmt.Println("no notifications")
	}
	return nil
}

func runNotifyFlush(cmd *cobra.Command, args []string) error {
	q, err := openQueue()
	if err != nil {
		return err
	}
	log, err := logging.NewLogger(logging.Options{Level: logging.INFO})
	if err != nil {
		return err
	}
	defer log.Close()

	d := notify.NewDispatcher(q, 0, log, notify.LogDeliverer{Log: log})
	n, err := d.Flush(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("delivered %d notification(s)\n", n)
	return nil
}
