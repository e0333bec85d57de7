// cmd/tools/chat-cli/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

type chatRequest struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

type chatResponse struct {
	ThreadID  string            `json:"threadId"`
	Done      bool              `json:"done"`
	Reply     string            `json:"reply"`
	Citations []models.Citation `json:"citations"`
}

var (
	serverURL string
	threadID  string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:          "chat-cli",
		Short:        "Talk to a running travel assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Assistant base URL")
	root.PersistentFlags().StringVar(&threadID, "thread", "", "Thread ID (assigned by the server when empty)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Per-turn timeout")

	root.AddCommand(sendCmd(), replCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			resp, err := send(cmd.Context(), client, threadID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), resp)
			fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", resp.ThreadID)
			return nil
		},
	}
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively on one thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			return repl(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// Turns are not idempotent: no retries.
func newClient() *apihttp.Client {
	return apihttp.NewClient(serverURL, timeout, apihttp.WithRetries(0))
}

func repl(ctx context.Context, client *apihttp.Client, in io.Reader, out io.Writer) error {
	thread := threadID
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "/quit", "/exit":
			return nil
		}

		resp, err := send(ctx, client, thread, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n> ", err)
			continue
		}
		thread = resp.ThreadID
		printReply(out, resp)
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func send(ctx context.Context, client *apihttp.Client, thread, message string) (*chatResponse, error) {
	var resp chatResponse
	if err := client.PostJSON(ctx, "/api/chat", chatRequest{ThreadID: thread, Message: message}, &resp); err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	return &resp, nil
}

func printReply(out io.Writer, resp *chatResponse) {
	fmt.Fprintln(out, resp.Reply)
	for i, c := range resp.Citations {
		fmt.Fprintf(out, "  [%d] %s %s\n", i+1, c.Title, c.URL)
	}
}
