package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/spektr-org/finchat/chatbot"
)

// ============================================================================
// INTERACTIVE CHAT — line-oriented REPL
// ============================================================================

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	answerStyle    = lipgloss.NewStyle().Bold(true)
	codeLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

const helpText = `Ask any question about the holdings and trades data, for example:
  - What is the total quantity for Garfield on 04-03-2020?
  - How many trades per portfolio?
  - Which security has the largest position?

Commands:
  help     show this message
  summary  show record counts and columns
  quit     exit (also: exit, q)`

var showSummary bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat (default)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&showSummary, "show-summary", false, "Print the data summary before the first question")
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.close()

	repl := &chatLoop{
		bot:      a.bot,
		summary:  a.session.Summary(),
		showCode: a.cfg.Chatbot.ShowCodeByDefault,
		in:       bufio.NewScanner(cmd.InOrStdin()),
		out:      cmd.OutOrStdout(),
	}
	return repl.run(cmd)
}

// chatLoop reads questions until quit or end of input.
type chatLoop struct {
	bot      *chatbot.Bot
	summary  string
	showCode bool
	in       *bufio.Scanner
	out      io.Writer
}

func (l *chatLoop) run(cmd *cobra.Command) error {
	fmt.Fprintln(l.out, titleStyle.Render("finchat: portfolio Q&A"))
	fmt.Fprintln(l.out, dimStyle.Render("Type 'help' for examples, 'quit' to exit."))
	if showSummary {
		fmt.Fprintln(l.out, l.summary)
	}

	for {
		fmt.Fprint(l.out, "\n"+promptStyle.Render("❓ Your question: "))
		line, ok := l.readLine()
		if !ok {
			fmt.Fprintln(l.out)
			return l.in.Err()
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(l.out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(l.out, helpText)
			continue
		case "summary":
			fmt.Fprintln(l.out, l.summary)
			continue
		}

		withCode := l.askShowCode()
		fmt.Fprintln(l.out, dimStyle.Render("Thinking..."))

		ans, err := l.bot.Ask(cmd.Context(), line)
		if err != nil {
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			fmt.Fprintln(l.out, errorStyle.Render("Error: ")+err.Error())
			continue
		}
		if withCode {
			fmt.Fprintf(l.out, "\n%s\n%s\n", codeLabelStyle.Render("Generated program:"), ans.Program)
		}
		fmt.Fprintf(l.out, "\n%s %s\n", answerStyle.Render("Answer:"), ans.Text)
	}
}

// askShowCode asks whether to print the program; an empty reply keeps the
// configured default.
func (l *chatLoop) askShowCode() bool {
	def := "n"
	if l.showCode {
		def = "y"
	}
	fmt.Fprint(l.out, dimStyle.Render(fmt.Sprintf("Show generated code? (y/n, default=%s): ", def)))
	reply, ok := l.readLine()
	if !ok || reply == "" {
		return l.showCode
	}
	return strings.HasPrefix(strings.ToLower(reply), "y")
}

func (l *chatLoop) readLine() (string, bool) {
	if !l.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(l.in.Text()), true
}
