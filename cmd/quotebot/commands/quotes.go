package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotebot/internal/app"
)

func postCmd(opts *options) *cobra.Command {
	var (
		theme    string
		anyTheme bool
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post one quote now",
		Long: "Post one quote now. Without flags a theme is chosen at random;\n" +
			"--theme restricts the choice to one theme and --any ignores themes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := app.PostRequest{Mode: app.ModeRandomTheme}

			switch {
			case anyTheme:
				req.Mode = app.ModeAny
			case cmd.Flags().Changed("theme"):
				req = app.PostRequest{Mode: app.ModeTheme, Theme: theme}
			}

			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				result, err := rt.service.Post(cmd.Context(), req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "posted %s\n%s\n", result.Receipt.ID, result.Message)

				if result.Reset {
					fmt.Fprintf(out, "(all quotes in %q had been used; rotation restarted)\n", result.Quote.Theme)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "post from this theme only")
	cmd.Flags().BoolVar(&anyTheme, "any", false, "choose from all quotes regardless of theme")
	cmd.MarkFlagsMutuallyExclusive("theme", "any")

	return cmd
}

func addCmd(opts *options) *cobra.Command {
	var text, author, theme string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a quote, prompting for fields not given as flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}

			fields := []struct {
				flag   string
				prompt string
				value  *string
			}{
				{"text", "Quote: ", &text},
				{"author", "Author (optional): ", &author},
				{"theme", "Theme: ", &theme},
			}

			for _, f := range fields {
				if cmd.Flags().Changed(f.flag) {
					continue
				}

				v, err := p.ask(f.prompt)
				if err != nil {
					return err
				}

				*f.value = v
			}

			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				added, err := rt.service.AddQuote(cmd.Context(), text, author, theme)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "added #%d to %q\n", added.Index, added.Quote.Theme)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "quote text")
	cmd.Flags().StringVar(&author, "author", "", "who said it")
	cmd.Flags().StringVar(&theme, "theme", "", "theme to file it under")

	return cmd
}

// prompter reads one line per question.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p prompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

func themesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "List the distinct themes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				themes, err := rt.service.Themes(cmd.Context())
				if err != nil {
					return err
				}

				for _, t := range themes {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}

				return nil
			})
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	var theme string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes with their positions and used flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), opts, func(rt *runtime) error {
				set, err := rt.service.ListQuotes(cmd.Context(), "")
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "#\tUSED\tTHEME\tQUOTE")

				for i, q := range set {
					if theme != "" && q.Theme != theme {
						continue
					}

					used := ""
					if q.Used {
						used = "yes"
					}

					text := q.Text
					if q.Author != "" {
						text += " (" + q.Author + ")"
					}

					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, used, q.Theme, text)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "only show this theme")

	return cmd
}
