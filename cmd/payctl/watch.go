package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <reference>",
	Short: "Stream lifecycle transitions for a payment request",
	Long: `Open a WebSocket to the engine and print every state transition of the
given payment request until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wsURL, err := watchURL(engineURL, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			conn.Close()
		}()

		for {
			var event map[string]any
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			out, _ := json.Marshal(event)
			fmt.Println(string(out))
		}
	},
}

// watchURL rewrites the engine's http(s) base URL into the ws(s) endpoint
// for a reference.
func watchURL(base, reference string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid engine url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/requests/" + url.PathEscape(reference)
	return u.String(), nil
}
