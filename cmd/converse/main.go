// Command converse runs a single assistant turn from a raw LINEAR16 file and
// prints the notifications it produces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/saker-ai/assistant-bridge/internal/config"
	applogger "github.com/saker-ai/assistant-bridge/internal/logger"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "converse:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("converse", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config yaml")
	inPath := fs.String("in", "-", "raw 16-bit PCM input, - for stdin")
	statePath := fs.String("state", "", "file holding the conversation state; updated after the turn")
	printConfig := fs.Bool("print-config", false, "print the effective config and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *printConfig {
		data, err := appconfig.Dump(cfg)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	logger := applogger.NewWriter(cfg.Log, os.Stderr)
	defer logger.Sync()

	src, closeSrc, err := openInput(*inPath)
	if err != nil {
		return err
	}
	defer closeSrc()

	var opts []assistant.Option
	if *statePath != "" {
		state, err := os.ReadFile(*statePath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read state: %w", err)
		}
		opts = append(opts, assistant.WithConversationState(state))
	}

	assistantCfg := cfg.Assistant()
	dialer := assistant.NewWebsocketDialer(assistantCfg, assistant.StaticToken(cfg.AccessToken), logger)
	client := assistant.NewClient(assistantCfg, dialer, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turn, err := client.RequestAssistant(ctx, src)
	if err != nil {
		return err
	}
	for n := range turn.Notifications() {
		printNotification(out, n)
	}
	outcome := turn.Outcome()
	if outcome.State != assistant.StateEnded {
		return fmt.Errorf("turn %s: %w", outcome.State, outcome.Err)
	}
	if *statePath != "" {
		if state := client.ConversationState(); len(state) > 0 {
			if err := os.WriteFile(*statePath, state, 0o600); err != nil {
				return fmt.Errorf("write state: %w", err)
			}
		}
	}
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func printNotification(w io.Writer, n assistant.Notification) {
	switch v := n.(type) {
	case assistant.EventNotification:
		fmt.Fprintf(w, "event: %s\n", v.Type)
	case assistant.AudioChunkNotification:
		fmt.Fprintf(w, "audio: %d bytes\n", v.Size)
	case assistant.TextNotification:
		fmt.Fprintf(w, "you said: %s\n", v.Text)
	case assistant.ResultNotification:
		fmt.Fprintf(w, "assistant: %s\n", v.Result.SpokenResponseText)
	case assistant.ErrorNotification:
		fmt.Fprintf(w, "error: %d %s\n", v.Detail.Code, v.Detail.Message)
	case assistant.AudioFileNotification:
		fmt.Fprintf(w, "audio file: %s\n", v.Path)
	case assistant.EndNotification:
		fmt.Fprintln(w, "end")
	case assistant.FailureNotification:
		fmt.Fprintf(w, "failed: %v\n", v.Err)
	}
}
