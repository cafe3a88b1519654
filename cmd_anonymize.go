package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
)

type anonymizeFlags struct {
	text    string
	file    string
	names   string
	url     string
	apiKey  string
	timeout time.Duration
	all     bool
	options anonymize.OptionSet
}

func newAnonymizeCmd(a *app) *cobra.Command {
	f := &anonymizeFlags{}

	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Send text to the anonymization service and print the result",
		Example: `  anonymizer anonymize --text "Call Ann at 555-123-4567" --names Ann --name --phone
  cat notes.txt | anonymizer anonymize --file - --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.anonymize(cmd.Context(), f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.text, "text", "", "text to anonymize")
	flags.StringVar(&f.file, "file", "", "read the text from a file, or - for stdin")
	flags.StringVar(&f.names, "names", "", "comma-separated names to redact")
	flags.StringVar(&f.url, "url", "", "service base URL (default from config)")
	flags.StringVar(&f.apiKey, "api-key", "", "API key sent as X-API-Key (default from config)")
	flags.DurationVar(&f.timeout, "timeout", 0, "request timeout (default from config)")
	flags.BoolVar(&f.all, "all", false, "enable every category")
	flags.BoolVar(&f.options.Name, "name", false, "redact names from --names")
	flags.BoolVar(&f.options.Date, "date", false, "redact dates")
	flags.BoolVar(&f.options.Email, "email", false, "redact email addresses")
	flags.BoolVar(&f.options.Phone, "phone", false, "redact phone numbers")
	flags.BoolVar(&f.options.ID, "id", false, "redact identity numbers")
	flags.BoolVar(&f.options.Address, "address", false, "redact postal addresses")
	cmd.MarkFlagsMutuallyExclusive("text", "file")

	return cmd
}

func (a *app) anonymize(ctx context.Context, f *anonymizeFlags, stdin io.Reader, stdout io.Writer) error {
	text, err := readText(f, stdin)
	if err != nil {
		return err
	}

	options := f.options
	if f.all {
		options = anonymize.AllOptions()
	}

	baseURL := a.cfg.Client.ServerURL
	if f.url != "" {
		baseURL = f.url
	}
	apiKey := a.cfg.Client.APIKey
	if f.apiKey != "" {
		apiKey = f.apiKey
	}
	timeout := a.cfg.Client.Timeout
	if f.timeout > 0 {
		timeout = f.timeout
	}

	client := &recordingAnonymizer{Anonymizer: anonymize.NewClient(baseURL,
		anonymize.WithTimeout(timeout),
		anonymize.WithAPIKey(apiKey),
		anonymize.WithLogger(a.logger),
	)}

	source := anonymize.InputsFunc(func() anonymize.Inputs {
		return anonymize.Inputs{Text: text, Names: f.names, Options: options}
	})
	display := anonymize.DisplayFunc(func(s string) {
		fmt.Fprintln(stdout, s)
	})

	form := anonymize.NewForm(client, source, display, a.logger)
	form.Submit(ctx)
	form.Wait()

	if client.Err() != nil {
		return errAlreadyReported
	}
	return nil
}

func readText(f *anonymizeFlags, stdin io.Reader) (string, error) {
	switch f.file {
	case "":
		return f.text, nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(f.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.file, err)
		}
		return string(b), nil
	}
}

// recordingAnonymizer remembers the last error so the command can set its
// exit status after the Form has rendered it.
type recordingAnonymizer struct {
	anonymize.Anonymizer

	mu  sync.Mutex
	err error
}

func (r *recordingAnonymizer) Anonymize(ctx context.Context, req anonymize.AnonymizationRequest) (string, error) {
	out, err := r.Anonymizer.Anonymize(ctx, req)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	return out, err
}

func (r *recordingAnonymizer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
