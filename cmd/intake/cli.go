package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/terminus-industrials/intake/internal/config"
	"github.com/terminus-industrials/intake/internal/errors"
	"github.com/terminus-industrials/intake/internal/form"
	"github.com/terminus-industrials/intake/internal/ops"
	"github.com/terminus-industrials/intake/internal/relay"
	"github.com/terminus-industrials/intake/internal/session"
	"github.com/terminus-industrials/intake/internal/submission"
	"github.com/terminus-industrials/intake/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, d session.Dispatcher, baseDir string) *cli.App {
	guard := session.NewGuard()
	app := &cli.App{
		Name:    "intake",
		Usage:   "Lead intake for advance purchase indications and contact messages",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(db, cfg, d),
			relayCmd(cfg),
			fieldsCmd(),
			validateCmd(),
			saveCmd(db),
			fillCmd(db, d, guard),
			fetchCmd(db),
			listCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			exportCmd(db, baseDir),
			submitCmd(db, d, guard),
			contactCmd(db, d),
		},
	}
	// Values such as "Hello, world" must reach --set whole
	app.DisableSliceFlagSeparator = true
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the public site.
func serveCmd(db *sql.DB, cfg *config.Config, d session.Dispatcher) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the public site",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(db, cfg, d, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil && err != http.ErrServerClosed {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// relayCmd runs the email relay endpoint in front of Mailgun.
func relayCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Run the email relay (needs MAILGUN_API_KEY and MAILGUN_DOMAIN)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8787, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			if cfg.MailgunAPIKey == "" || cfg.MailgunDomain == "" {
				return outputError(errors.NewInvalidRequest("MAILGUN_API_KEY and MAILGUN_DOMAIN must be set"))
			}
			mailer := relay.NewMailgun(cfg.MailgunBaseURL, cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.RelayTimeout())
			svc := relay.NewService(mailer, cfg.CompanyName, cfg.MailgunDomain)

			srv := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", c.String("bind"), c.Int("port")),
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := web.Run(srv); err != nil && err != http.ErrServerClosed {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

func formFlag() cli.Flag {
	return &cli.StringFlag{Name: "form", Aliases: []string{"f"}, Value: form.FormAPI, Usage: "Form: api|contact"}
}

func setFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "set", Aliases: []string{"s"}, Usage: "Field value as name=value (repeat for multi-choice)"}
}

// fieldsCmd prints a form's field registry.
func fieldsCmd() *cli.Command {
	return &cli.Command{
		Name:  "fields",
		Usage: "Describe a form's sections and fields",
		Flags: []cli.Flag{formFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Fields(ops.FieldsInput{Form: c.String("form")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// validateCmd checks values without saving.
func validateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate values (--set or a JSON object on stdin) without saving",
		Flags: []cli.Flag{
			formFlag(),
			setFlag(),
			&cli.StringFlag{Name: "field", Usage: "Validate only this field"},
		},
		Action: func(c *cli.Context) error {
			values, err := readValues(c, c.String("form"))
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Validate(ops.ValidateInput{
				Form:   c.String("form"),
				Values: values,
				Field:  c.String("field"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// saveCmd stores values as a draft for review.
func saveCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save values (--set or a JSON object on stdin) as a draft",
		Flags: []cli.Flag{formFlag(), setFlag()},
		Action: func(c *cli.Context) error {
			values, err := readValues(c, c.String("form"))
			if err != nil {
				return outputError(err)
			}
			if len(values) == 0 {
				return outputError(errors.NewInvalidRequest("no values given; use --set or pipe a JSON object"))
			}
			output, err := ops.Save(c.Context, db, ops.SaveInput{Form: c.String("form"), Values: values})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a draft with its rendered text and dispatch log",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted drafts"},
			&cli.BoolFlag{Name: "no-text", Usage: "Exclude the rendered text from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.Bool("no-text") {
				includeText := false
				input.IncludeText = &includeText
			}

			output, err := ops.Fetch(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List drafts, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "form", Aliases: []string{"f"}, Usage: "Filter by form"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted drafts"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				Form:           c.String("form"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a draft",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted drafts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd writes drafts to a JSONL file.
func exportCmd(db *sql.DB, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export drafts to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <dir>/exports/<form>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "form", Aliases: []string{"f"}, Usage: "Filter by form"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted drafts"},
		},
		Action: func(c *cli.Context) error {
			output, err := exportDrafts(c.Context, osFs(), db, exportRequest{
				Path:    c.String("path"),
				BaseDir: baseDir,
				Input: ops.ExportInput{
					Form:           c.String("form"),
					IncludeDeleted: c.Bool("include-deleted"),
				},
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// submitCmd dispatches a saved draft.
func submitCmd(db *sql.DB, d session.Dispatcher, guard *session.Guard) *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Confirm a saved draft and send it",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.SubmitDraft(c.Context, db, d, guard, ops.SubmitDraftInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// contactCmd sends a contact message without a review step.
func contactCmd(db *sql.DB, d session.Dispatcher) *cli.Command {
	return &cli.Command{
		Name:  "contact",
		Usage: "Send a contact message (--set or a JSON object on stdin)",
		Flags: []cli.Flag{setFlag()},
		Action: func(c *cli.Context) error {
			values, err := readValues(c, form.FormContact)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.SubmitForm(c.Context, db, d, ops.SubmitFormInput{Form: form.FormContact, Values: values})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if iErr, ok := err.(*errors.IntakeError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", iErr.Code, iErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readValues collects field values from a JSON object on stdin, then --set
// flags. A name given with --set replaces whatever stdin held for it.
func readValues(c *cli.Context, formName string) (map[string][]string, error) {
	values := make(map[string][]string)

	if stdinHasData() {
		text, err := readStdin()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if text != "" {
			var in map[string]submission.Value
			if err := json.Unmarshal([]byte(text), &in); err != nil {
				return nil, errors.NewInvalidRequest("stdin must be a JSON object of field values: " + err.Error())
			}
			for name, v := range in {
				values[name] = v.Items()
			}
		}
	}

	reg, _ := form.Lookup(formName)
	sets, err := parseSets(reg, c.StringSlice("set"))
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	for name, vs := range sets {
		values[name] = vs
	}
	return values, nil
}

// parseSets turns name=value pairs into field values. Repeating a
// multi-choice name collects its values in order; for any other field the
// last one given wins. A nil registry treats every name as multi-valued.
func parseSets(reg *form.Registry, pairs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", pair)
		}
		if singleValued(reg, name) {
			out[name] = []string{value}
			continue
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}

func singleValued(reg *form.Registry, name string) bool {
	if reg == nil {
		return false
	}
	f, ok := reg.Field(name)
	return ok && f.Kind != form.KindMultiChoice
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
