package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/roberta039/Gym-Trainer/adapters/relay"
	chatws "github.com/roberta039/Gym-Trainer/adapters/websocket"
	"github.com/roberta039/Gym-Trainer/domain"
)

var (
	connectURLFlag     string
	connectSessionFlag string
	connectTokenFlag   string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Chat with a running server over WebSocket",
	Long: `Connect to a running server's /ws endpoint and chat from stdin.
Type /clear to delete the session's history and /exit to quit.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectURLFlag, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	connectCmd.Flags().StringVarP(&connectSessionFlag, "session", "s", "", "session id to resume")
	connectCmd.Flags().StringVar(&connectTokenFlag, "token", "", "bearer token when the server requires auth")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	u, err := url.Parse(connectURLFlag)
	if err != nil {
		return fmt.Errorf("invalid --url: %w", err)
	}
	if connectSessionFlag != "" {
		q := u.Query()
		q.Set("session_id", connectSessionFlag)
		u.RawQuery = q.Encode()
	}
	header := http.Header{}
	if connectTokenFlag != "" {
		header.Set("Authorization", "Bearer "+connectTokenFlag)
	}

	// Connect to the WebSocket server
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer conn.Close()

	// Handle incoming messages in a separate goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					fmt.Fprintln(out, errorStyle.Render("connection closed: "+err.Error()))
				}
				return
			}
			printEvent(out, message)
		}
	}()

	// Set up a signal handler to gracefully shut down on interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	// Read user input and send messages to the server
	reader := bufio.NewScanner(cmd.InOrStdin())
	for reader.Scan() {
		text := strings.TrimSpace(reader.Text())
		var frame chatws.Inbound
		switch text {
		case "":
			continue
		case "/exit":
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case "/clear":
			frame = chatws.Inbound{Type: chatws.TypeClear}
		default:
			frame = chatws.Inbound{Type: chatws.TypeMessage, Text: text}
		}
		if err := conn.WriteJSON(frame); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}
	return reader.Err()
}

// printEvent renders one server event for the terminal.
func printEvent(out io.Writer, message []byte) {
	var ev struct {
		Type relay.EventType `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &ev); err != nil {
		fmt.Fprintf(out, "Received: %s\n", message)
		return
	}

	switch ev.Type {
	case relay.EventChunk:
		var d relay.ChunkData
		json.Unmarshal(ev.Data, &d)
		fmt.Fprint(out, d.Text)
	case relay.EventDone:
		fmt.Fprintln(out)
	case relay.EventNotice:
		var n domain.Notice
		json.Unmarshal(ev.Data, &n)
		fmt.Fprintln(out, noticeStyle.Render(n.Text))
	case relay.EventError:
		var d relay.ErrorData
		json.Unmarshal(ev.Data, &d)
		fmt.Fprintln(out, errorStyle.Render(d.Code+": "+d.Message))
	case relay.EventHistory:
		var h relay.HistoryData
		json.Unmarshal(ev.Data, &h)
		fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("session %s, %d earlier messages", h.SessionID, len(h.Turns))))
		for _, t := range h.Turns {
			printTurn(out, domain.Turn{Role: t.Role, Content: t.Content})
		}
	}
}
