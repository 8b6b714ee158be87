// Package authcmder provides the auth command for storing provider
// credentials.
package authcmder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/vecindex/pkg/cliui"
	"github.com/papercomputeco/vecindex/pkg/credentials"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

// targetQdrant stores the API key of a Qdrant vector store.
const targetQdrant = "qdrant"

const authLongDesc string = `Store credentials for embedding providers and vector stores.

Credentials are stored in credentials.toml (mode 0600) in the .vecindex/
directory. Environment variables always take precedence over stored
values, and values are never printed or logged.

Each provider prompts for the credentials it requires; optional settings
such as AWS_REGION for bedrock may be left empty. When stdin is not a
terminal, one value is read per line in prompt order.

Examples:
  vecindex auth openai                   Prompt for the OpenAI API key
  vecindex auth bedrock                  Prompt for AWS credentials
  vecindex auth qdrant                   Prompt for the Qdrant API key
  vecindex auth --list                   List stored credential names
  vecindex auth --remove openai          Remove stored OpenAI credentials
  echo $KEY | vecindex auth openai       Pipe the API key from stdin`

const authShortDesc string = "Store credentials for embedding providers and vector stores"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			w := cmd.OutOrStdout()

			switch {
			case listFlag:
				return runList(w, configDir)
			case removeFlag != "":
				return runRemove(w, removeFlag, configDir)
			default:
				if len(args) == 0 {
					return fmt.Errorf("provider argument required\n\nSupported providers: %s",
						strings.Join(targets(), ", "))
				}
				return runAuth(w, cmd.InOrStdin(), args[0], configDir)
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return targets(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credential names")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

// targets lists every provider or store that reads credentials.
func targets() []string {
	return append(embeddings.SupportedProviders(), targetQdrant)
}

// namesFor returns the credential names of a target, and how many of them
// are required.
func namesFor(target string) ([]string, int, error) {
	if target == targetQdrant {
		return credentials.VectorStoreNames, len(credentials.VectorStoreNames), nil
	}
	names, ok := credentials.ProviderNames(target)
	if !ok {
		return nil, 0, fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			target, strings.Join(targets(), ", "))
	}
	required, _ := embeddings.RequiredCredentials(target)
	return names, len(required), nil
}

func runAuth(w io.Writer, in io.Reader, target, configDir string) error {
	target = strings.ToLower(strings.TrimSpace(target))

	names, required, err := namesFor(target)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(w, "\n  %s %s needs no credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(target))
		return nil
	}

	values, err := readValues(w, in, names, required)
	if err != nil {
		return err
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	creds, err := mgr.Load()
	if err != nil {
		return err
	}
	for name, value := range values {
		creds.Values[name] = value
	}
	if err := mgr.Save(creds); err != nil {
		return err
	}

	stored := make([]string, 0, len(values))
	for _, name := range names {
		if _, ok := values[name]; ok {
			stored = append(stored, name)
		}
	}
	fmt.Fprintf(w, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(target),
		cliui.DimStyle.Render("("+strings.Join(stored, ", ")+")"),
	)
	return nil
}

// readValues reads one value per name. On a terminal each value is prompted
// for with hidden input; otherwise one line is read per name. Names past
// required may be left empty.
func readValues(w io.Writer, in io.Reader, names []string, required int) (map[string]string, error) {
	values := make(map[string]string, len(names))

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		for i, name := range names {
			label := name
			if i >= required {
				label += " (optional)"
			}
			fmt.Fprintf(w, "Enter %s: ", label)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(w) // newline after hidden input
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			if err := collect(values, name, string(b), i < required); err != nil {
				return nil, err
			}
		}
		return values, nil
	}

	scanner := bufio.NewScanner(in)
	for i, name := range names {
		line := ""
		if scanner.Scan() {
			line = scanner.Text()
		} else if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		} else if i < required {
			return nil, fmt.Errorf("no input received on stdin for %s", name)
		}
		if err := collect(values, name, line, i < required); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func collect(values map[string]string, name, raw string, required bool) error {
	v := strings.TrimSpace(raw)
	if v == "" {
		if required {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
	values[name] = v
	return nil
}

func runList(w io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	names, err := mgr.Names()
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Fprintf(w, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(w, "  Use 'vecindex auth <provider>' to store credentials.\n")
		fmt.Fprintf(w, "  Supported providers: %s\n\n", strings.Join(targets(), ", "))
		return nil
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, name := range names {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(name),
			cliui.DimStyle.Render("→ "+strings.Join(readers(name), ", ")),
		)
	}
	fmt.Fprintln(w)

	return nil
}

// readers returns the targets that read a credential name.
func readers(name string) []string {
	var out []string
	for _, target := range targets() {
		names, _, _ := namesFor(target)
		if slices.Contains(names, name) {
			out = append(out, target)
		}
	}
	return out
}

func runRemove(w io.Writer, target, configDir string) error {
	target = strings.ToLower(strings.TrimSpace(target))

	names, _, err := namesFor(target)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%s needs no credentials", target)
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.Remove(names...); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(target))

	return nil
}
