package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [connection-id] [method]",
	Short: "Call a provider method on a connection",
	Long: `Call a provider method on a connection. Expired access tokens are
refreshed and the call retried. When the refresh fails the connection is
disabled and must be reconnected.

Examples:
  sercha-connect invoke 4f1c... channels
  sercha-connect invoke 4f1c... post --args '{"text":"Hello"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runInvoke,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Queue provider calls for later",
	Long: `Queue provider calls to run at a later time. Queued calls are dispatched
by 'sercha-connect serve'.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add [connection-id] [method]",
	Short: "Schedule a provider call",
	Long: `Schedule a provider call. --at takes an RFC 3339 time, --in a duration
from now.

Examples:
  sercha-connect schedule add 4f1c... post --in 2h --args '{"text":"Later"}'
  sercha-connect schedule add 4f1c... post --at 2026-05-01T09:00:00Z`,
	Args: cobra.ExactArgs(2),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled calls",
	RunE:  runScheduleList,
}

// Flags for invoke and schedule.
var (
	invokeArgs    string
	scheduleAt    string
	scheduleIn    time.Duration
	invokeCompact bool
)

func init() {
	invokeCmd.Flags().StringVar(&invokeArgs, "args", "", "Method arguments as a JSON object")
	invokeCmd.Flags().BoolVar(&invokeCompact, "compact", false, "Print compact JSON")

	scheduleAddCmd.Flags().StringVar(&invokeArgs, "args", "", "Method arguments as a JSON object")
	scheduleAddCmd.Flags().StringVar(&scheduleAt, "at", "", "Run time (RFC 3339)")
	scheduleAddCmd.Flags().DurationVar(&scheduleIn, "in", 0, "Run after this duration")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	if invoker == nil {
		return fmt.Errorf("invoker: %w", errNotConfigured)
	}

	callArgs, err := parseArgsJSON(invokeArgs)
	if err != nil {
		return err
	}

	result, err := invoker.Invoke(commandContext(cmd), orgFlag, args[0], args[1], callArgs)
	switch {
	case errors.Is(err, domain.ErrReauthenticationRequired):
		return fmt.Errorf("%w\nReconnect with 'sercha-connect connect <provider> --refresh <account-id>'", err)
	case err != nil:
		return err
	}

	var out []byte
	if invokeCompact {
		out, err = json.Marshal(result)
	} else {
		out, err = json.MarshalIndent(result, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	if scheduleService == nil {
		return fmt.Errorf("schedule service: %w", errNotConfigured)
	}

	callArgs, err := parseArgsJSON(invokeArgs)
	if err != nil {
		return err
	}
	runAt, err := parseRunAt(scheduleAt, scheduleIn, time.Now())
	if err != nil {
		return err
	}

	inv, err := scheduleService.Schedule(commandContext(cmd), orgFlag, args[0], args[1], callArgs, runAt)
	if err != nil {
		return err
	}
	cmd.Printf("Scheduled %s for %s (%s)\n", inv.Method, inv.RunAt.Format(time.RFC3339), inv.ID)
	return nil
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	if scheduleService == nil {
		return fmt.Errorf("schedule service: %w", errNotConfigured)
	}

	invs, err := scheduleService.List(commandContext(cmd), orgFlag)
	if err != nil {
		return err
	}
	if len(invs) == 0 {
		cmd.Println("No scheduled calls.")
		return nil
	}

	for i := range invs {
		inv := &invs[i]
		cmd.Printf("  %s  %s  %-8s %s.%s", inv.ID, inv.RunAt.Format(time.RFC3339), inv.Status, inv.ConnectionID, inv.Method)
		if inv.LastError != "" {
			cmd.Printf("  (%s)", inv.LastError)
		}
		cmd.Println()
	}
	return nil
}

func parseArgsJSON(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: --args must be a JSON object", domain.ErrInvalidInput)
	}
	return args, nil
}

func parseRunAt(at string, in time.Duration, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != 0:
		return time.Time{}, errors.New("use either --at or --in")
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: --at must be an RFC 3339 time", domain.ErrInvalidInput)
		}
		return t, nil
	case in < 0:
		return time.Time{}, fmt.Errorf("%w: --in must not be negative", domain.ErrInvalidInput)
	}
	return now.Add(in), nil
}
