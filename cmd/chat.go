package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roberta039/Gym-Trainer/adapters/render"
	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/usecase"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var (
	chatSessionFlag string
	chatAttachFlag  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with GymBro AI in the terminal",
	Long: `Chat in the terminal without starting the server. History is stored in the
same database, so a session can be resumed with --session.

Commands inside the chat:
  /attach <file>  send an image or PDF with the next message
  /clear          delete this session's history
  /exit           quit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionFlag, "session", "s", "", "session id to resume (new one if empty)")
	chatCmd.Flags().StringVar(&chatAttachFlag, "attach", "", "file to attach to the first message")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, appOptions{notify: terminalNotifier(out)})
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID := chatSessionFlag
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Fprintln(out, hintStyle.Render("session "+sessionID+" (resume with --session)"))

	for _, t := range a.chat.History(ctx, sessionID) {
		printTurn(out, t)
	}

	attachPath := chatAttachFlag
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, userStyle.Render("you> "))
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())

		switch {
		case line == "":
			continue
		case line == "/exit":
			return nil
		case line == "/clear":
			if err := a.chat.Clear(ctx, sessionID); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			} else {
				fmt.Fprintln(out, hintStyle.Render("history cleared"))
			}
			continue
		case strings.HasPrefix(line, "/attach "):
			attachPath = strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			fmt.Fprintln(out, hintStyle.Render("will attach "+attachPath))
			continue
		}

		input := usecase.SendInput{SessionID: sessionID, Text: line}
		if attachPath != "" {
			att, err := readAttachment(attachPath)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
			input.Attachment = att
			attachPath = ""
		}

		chatTurn(ctx, a.chat, input, out)
	}
}

// chatTurn streams one reply. Text is printed as it arrives until a drawing
// starts; drawings are summarized once the reply is complete.
func chatTurn(ctx context.Context, chat *usecase.ChatService, in usecase.SendInput, out io.Writer) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(out, assistantStyle.Render("gymbro> "))

	var buf strings.Builder
	printed := 0
	reply, err := chat.Send(turnCtx, in, func(chunk string) error {
		buf.WriteString(chunk)
		visible, _ := render.Preview(buf.String())
		if len(visible) > printed {
			fmt.Fprint(out, visible[printed:])
			printed = len(visible)
		}
		return nil
	})
	fmt.Fprintln(out)

	if reply.Text != "" {
		if doc := render.Render(reply.Text); doc.HasGraphics() {
			fmt.Fprintln(out, hintStyle.Render(describeDrawings(doc)))
		}
	}
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	}
}

func describeDrawings(doc render.Document) string {
	var lines []string
	for _, b := range doc.Blocks {
		if b.Kind == render.BlockGraphics {
			lines = append(lines, fmt.Sprintf("[drawing, %d bytes of SVG: open the web client to view]", len(b.Content)))
		}
	}
	return strings.Join(lines, "\n")
}

func printTurn(out io.Writer, t domain.Turn) {
	if t.Role == domain.UserRole {
		fmt.Fprintln(out, userStyle.Render("you> ")+t.Content)
		return
	}
	visible, drawing := render.Preview(t.Content)
	fmt.Fprintln(out, assistantStyle.Render("gymbro> ")+visible)
	if drawing {
		fmt.Fprintln(out, hintStyle.Render(describeDrawings(render.Render(t.Content))))
	}
}

func terminalNotifier(out io.Writer) usecase.Notifier {
	return func(_ context.Context, n domain.Notice) {
		fmt.Fprintln(out, "\n"+noticeStyle.Render(n.Text))
	}
}

func readAttachment(path string) (*usecase.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	return &usecase.Attachment{Name: filepath.Base(path), Data: data}, nil
}
