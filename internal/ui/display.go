package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"ragchat/internal/api"
	"ragchat/internal/conversation"
)

// Display renders the chat transcript and status lines in the terminal
type Display struct {
	width    int
	renderer *glamour.TermRenderer
}

// NewDisplay creates a new display
func NewDisplay() *Display {
	width := terminalWidth()

	// Create markdown renderer
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-10),
	)

	return &Display{
		width:    width,
		renderer: renderer,
	}
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	fmt.Print("\033[2J\033[H")
}

// PrintWelcome displays the welcome banner
func (d *Display) PrintWelcome(user *api.UserProfile) {
	fmt.Printf("%s╔════════════════════════════════════════╗%s\n", colorCyan, colorReset)
	fmt.Printf("%s║        ragchat - knowledge chat        ║%s\n", colorCyan, colorReset)
	fmt.Printf("%s╚════════════════════════════════════════╝%s\n", colorCyan, colorReset)
	if user != nil {
		fmt.Printf("\n%sSigned in as %s (%s)%s\n", colorGray, user.FullName, user.Email, colorReset)
	}
	fmt.Printf("%sCommands: /chats /switch /new /delete /rename /me /logout /clear /exit%s\n\n", colorGray, colorReset)
}

// PrintGoodbye displays the goodbye message
func (d *Display) PrintGoodbye() {
	fmt.Printf("\n%sGoodbye! 👋%s\n", colorCyan, colorReset)
}

// PrintPrompt displays the user input prompt with the active chat's title
func (d *Display) PrintPrompt(title string) {
	fmt.Printf("\n%s[%s]%s %s>%s ", colorDim, title, colorReset, colorGreen, colorReset)
}

// PrintError displays an error message
func (d *Display) PrintError(err error) {
	fmt.Printf("%s✗ Error: %v%s\n", colorRed, err, colorReset)
}

// PrintInfo displays an info message
func (d *Display) PrintInfo(msg string) {
	fmt.Printf("%sℹ %s%s\n", colorCyan, msg, colorReset)
}

// PrintWarning displays a warning message
func (d *Display) PrintWarning(msg string) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, msg, colorReset)
}

// PrintSuccess displays a success message
func (d *Display) PrintSuccess(msg string) {
	fmt.Printf("%s✓ %s%s\n", colorGreen, msg, colorReset)
}

// PrintUserMessage displays a user message block
func (d *Display) PrintUserMessage(msg conversation.Message) {
	fmt.Printf("\n%s┌─ %s%s\n", colorGray, header("You", msg.CreatedAt), colorReset)
	fmt.Printf("%s│%s %s\n", colorGray, colorReset, msg.Content)
	fmt.Printf("%s└%s\n", colorGray, colorReset)
}

// PrintAssistantMessage displays an assistant reply with rendered markdown
// and its retrieved sources
func (d *Display) PrintAssistantMessage(msg conversation.Message) {
	fmt.Printf("\n%s┌─ %s%s\n", colorBlue, header("Assistant", msg.CreatedAt), colorReset)

	body := msg.Content
	if d.renderer != nil {
		if rendered, err := d.renderer.Render(msg.Content); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	for _, line := range strings.Split(body, "\n") {
		fmt.Printf("%s│%s %s\n", colorGray, colorReset, line)
	}

	d.printSources(msg.Links, msg.Titles)
	fmt.Printf("%s└%s\n", colorGray, colorReset)
}

// printSources pairs titles with links; when titles are missing or the
// sequences diverge, the link stands alone
func (d *Display) printSources(links, titles []string) {
	if len(links) == 0 {
		return
	}

	fmt.Printf("%s│%s\n", colorGray, colorReset)
	fmt.Printf("%s│ 📚 Sources:%s\n", colorGray, colorReset)
	for i, link := range links {
		if i < len(titles) && titles[i] != "" {
			fmt.Printf("%s│    • %s — %s%s\n", colorGray, titles[i], truncate(link, 60), colorReset)
		} else {
			fmt.Printf("%s│    • %s%s\n", colorGray, truncate(link, 60), colorReset)
		}
	}
}

// PrintTranscript displays a full message history
func (d *Display) PrintTranscript(messages []conversation.Message) {
	if len(messages) == 0 {
		d.PrintInfo("No messages in this chat yet")
		return
	}
	for _, msg := range messages {
		if msg.Role == "user" {
			d.PrintUserMessage(msg)
		} else {
			d.PrintAssistantMessage(msg)
		}
	}
}

// PrintChatList displays the user's chats, marking the active one
func (d *Display) PrintChatList(chats []api.ChatSummary, activeID int64) {
	if len(chats) == 0 {
		d.PrintInfo("No chats yet - just start typing to create one")
		return
	}

	fmt.Println()
	for _, chat := range chats {
		marker := "  "
		if chat.ID == activeID {
			marker = colorGreen + "➤ " + colorReset
		}
		fmt.Printf("%s%s%d%s  %s\n", marker, colorGray, chat.ID, colorReset, chat.Name)
	}
}

// PrintProfile displays the signed-in user's profile
func (d *Display) PrintProfile(user *api.UserProfile) {
	if user == nil {
		d.PrintWarning("Profile not available - still offline?")
		return
	}
	fmt.Printf("\n%sName:%s       %s\n", colorGray, colorReset, user.FullName)
	fmt.Printf("%sEmail:%s      %s\n", colorGray, colorReset, user.Email)
	fmt.Printf("%sPosition:%s   %s (%s)\n", colorGray, colorReset, user.Position, user.PositionLevel)
	fmt.Printf("%sDepartment:%s %s\n", colorGray, colorReset, user.Department)
}

// PrintThinking shows the waiting indicator while a reply is generated
func (d *Display) PrintThinking() {
	fmt.Printf("%s… thinking%s\n", colorDim, colorReset)
}

// Helper functions

// header builds a message block header. History records carry no local
// creation time, so the timestamp and its separator are omitted together.
func header(label string, t time.Time) string {
	if t.IsZero() {
		return label
	}
	return label + " · " + t.Format("15:04:05")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
