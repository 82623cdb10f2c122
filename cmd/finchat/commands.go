package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spektr-org/finchat/chatbot"
	"github.com/spektr-org/finchat/render"
	"github.com/spektr-org/finchat/schema"
)

// ============================================================================
// ONE-SHOT COMMANDS — ask, exec, summary, schema
// ============================================================================

var (
	showCode      bool
	format        string
	outFile       string
	questionsFile string
)

var askCmd = &cobra.Command{
	Use:   "ask [QUESTION]",
	Short: "Answer a single question, or every question in --file, and exit",
	Example: `  finchat ask "What is the total quantity for Garfield on 04-03-2020?"
  finchat ask "holdings per portfolio" --format csv --out holdings.csv
  finchat ask --file questions.txt --show-code`,
	Args: func(cmd *cobra.Command, args []string) error {
		if questionsFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		withProgram := showCode || (a.cfg.Chatbot.ShowCodeByDefault && !cmd.Flags().Changed("show-code"))
		if questionsFile != "" {
			f, err := os.Open(questionsFile)
			if err != nil {
				return fmt.Errorf("failed to open questions file: %w", err)
			}
			defer f.Close()
			return askBatch(cmd.Context(), a.bot, f, cmd.OutOrStdout(), withProgram)
		}

		ans, err := a.bot.Ask(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return writeAnswer(cmd.OutOrStdout(), ans, withProgram)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec PROGRAM",
	Short: "Run a query program directly, without calling the model",
	Long: `Run a query program against the prepared datasets. Useful for checking
what a generated program does. Pass "-" to read the program from stdin.`,
	Example: `  finchat exec 'result = group(holdings, "PortfolioName", agg="sum", col="Qty")'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		program := args[0]
		if program == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read program: %w", err)
			}
			program = string(data)
		}

		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		ans := a.bot.Exec(cmd.Context(), program)
		a.log.Debug("program executed", zap.String("id", ans.ID), zap.Duration("elapsed", ans.Elapsed))
		return writeAnswer(cmd.OutOrStdout(), ans, false)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print record counts and columns of both datasets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()
		fmt.Fprintln(cmd.OutOrStdout(), a.session.Summary())
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema description sent to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		if format == "json" || format == "pretty" {
			out := schemaOutput{Datasets: a.session.Metadata(), DateFormats: a.session.DateFormats()}
			return render.WriteJSON(cmd.OutOrStdout(), out, format == "pretty")
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.session.Schema())
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&questionsFile, "file", "", "Ask every question in this file, one per line (# starts a comment)")
	askCmd.Flags().BoolVar(&showCode, "show-code", false, "Print the generated program (default from chatbot.show_code_by_default)")
	for _, c := range []*cobra.Command{askCmd, execCmd} {
		c.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, pretty, csv")
		c.Flags().StringVarP(&outFile, "out", "o", "", "Write output to file instead of stdout")
	}
	schemaCmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, pretty")
}

// ============================================================================
// BATCH — one question per line
// ============================================================================

// askBatch asks every non-blank, non-comment line of r in order. Generation
// failures are reported per question and the batch continues; text output
// separates answers with a rule, json/pretty output is one array.
func askBatch(ctx context.Context, bot *chatbot.Bot, r io.Reader, w io.Writer, withProgram bool) error {
	switch format {
	case "text", "", "json", "pretty":
	default:
		return fmt.Errorf("format %q is not supported with --file (use text, json or pretty)", format)
	}

	var outputs []render.Output
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		q := strings.TrimSpace(sc.Text())
		if q == "" || strings.HasPrefix(q, "#") {
			continue
		}
		n++

		ans, err := bot.Ask(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ans = &chatbot.Answer{Question: q, Text: "Error: " + err.Error(), Err: err}
		}

		if format == "json" || format == "pretty" {
			outputs = append(outputs, ans.Output())
			continue
		}
		if n > 1 {
			fmt.Fprintln(w, dimStyle.Render(strings.Repeat("─", 60)))
		}
		fmt.Fprintf(w, "%s %s\n", answerStyle.Render("Question:"), q)
		if withProgram && ans.Program != "" {
			fmt.Fprintf(w, "%s\n%s\n", codeLabelStyle.Render("Generated program:"), ans.Program)
		}
		fmt.Fprintf(w, "%s %s\n", answerStyle.Render("Answer:"), ans.Text)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read questions: %w", err)
	}
	if format == "json" || format == "pretty" {
		if outputs == nil {
			outputs = []render.Output{}
		}
		return render.WriteJSON(w, outputs, format == "pretty")
	}
	return nil
}

// schemaOutput is the JSON shape of `finchat schema`.
type schemaOutput struct {
	Datasets    []schema.DatasetMeta `json:"datasets"`
	DateFormats []string             `json:"dateFormats"`
}

// ============================================================================
// OUTPUT
// ============================================================================

// writeAnswer renders ans in the selected format to w or --out.
func writeAnswer(w io.Writer, ans *chatbot.Answer, withProgram bool) (err error) {
	if outFile != "" {
		f, ferr := os.Create(outFile)
		if ferr != nil {
			return fmt.Errorf("failed to create output file: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch format {
	case "csv":
		if ans.Err != nil {
			return ans.Err
		}
		return render.WriteCSV(w, ans.Result)
	case "json", "pretty":
		return render.WriteJSON(w, ans.Output(), format == "pretty")
	case "text", "":
		if withProgram {
			fmt.Fprintf(w, "%s\n%s\n\n", codeLabelStyle.Render("Generated program:"), ans.Program)
		}
		_, err = fmt.Fprintln(w, ans.Text)
		return err
	}
	return fmt.Errorf("unknown format %q (use text, json, pretty or csv)", format)
}
