package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dispatchd/dispatchd/pkg/action"
	"github.com/dispatchd/dispatchd/pkg/expectation"
	"github.com/dispatchd/dispatchd/pkg/httpmsg"
)

func httpResponseFromFlags(status int, body string) httpmsg.Response {
	return httpmsg.Response{StatusCode: status, Body: []byte(body)}
}

// parseForwardTarget accepts "scheme://host:port" (port defaults to 80
// for http, 443 for https) and returns its parts for action.Forward.
func parseForwardTarget(raw string) (host string, port int, scheme string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", 0, "", fmt.Errorf("cli: invalid --forward-to %q", raw)
	}

	scheme = u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	portStr := u.Port()
	if portStr == "" {
		if scheme == "https" {
			portStr = "443"
		} else {
			portStr = "80"
		}
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, "", fmt.Errorf("cli: invalid port in --forward-to %q", raw)
	}

	return u.Hostname(), port, scheme, nil
}

var expectationsFile string

var expectationsCmd = &cobra.Command{
	Use:   "expectations",
	Short: "Manage the expectations dispatchd matches requests against",
}

var (
	addID         string
	addMethod     string
	addPathExact  string
	addStatus     int
	addBody       string
	addForwardTo  string
)

var expectationsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a Response expectation",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without --path, prompt interactively, following the teacher's
		// huh-form-when-flags-are-absent pattern (pkg/cli/http.go).
		if !cmd.Flags().Changed("path") {
			statusStr := fmt.Sprintf("%d", addStatus)
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Expectation ID").
						Value(&addID).
						Validate(func(s string) error {
							if s == "" {
								return errors.New("id is required")
							}
							return nil
						}),
					huh.NewInput().
						Title("URL path to match").
						Placeholder("/api/v1/users").
						Value(&addPathExact).
						Validate(func(s string) error {
							if s == "" {
								return errors.New("path is required")
							}
							return nil
						}),
					huh.NewSelect[string]().
						Title("HTTP method").
						Options(
							huh.NewOption("GET", "GET"),
							huh.NewOption("POST", "POST"),
							huh.NewOption("PUT", "PUT"),
							huh.NewOption("DELETE", "DELETE"),
							huh.NewOption("PATCH", "PATCH"),
						).
						Value(&addMethod),
					huh.NewInput().
						Title("Response status code").
						Value(&statusStr),
					huh.NewText().
						Title("Response body").
						Placeholder(`{"status": "ok"}`).
						Value(&addBody),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
			fmt.Sscanf(statusStr, "%d", &addStatus)
		}

		if addID == "" {
			return errors.New("cli: expectation id is required")
		}

		expectations, err := loadExpectationsFile(expectationsFile)
		if err != nil {
			return err
		}

		exp := expectation.Expectation{
			ID:      addID,
			Matcher: expectation.Matcher{Method: addMethod, PathExact: addPathExact},
			Action: action.Response{
				HTTPResponse: httpResponseFromFlags(addStatus, addBody),
			},
		}
		if addForwardTo != "" {
			host, port, scheme, err := parseForwardTarget(addForwardTo)
			if err != nil {
				return err
			}
			exp.Action = action.Forward{Host: host, Port: port, Scheme: scheme}
		}

		expectations = upsertExpectation(expectations, exp)
		if err := saveExpectationsFile(expectationsFile, expectations); err != nil {
			return err
		}

		fmt.Printf("added expectation %q\n", exp.ID)
		return nil
	},
}

var expectationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured expectations",
	RunE: func(cmd *cobra.Command, args []string) error {
		expectations, err := loadExpectationsFile(expectationsFile)
		if err != nil {
			return err
		}
		docs := make([]expectation.Document, len(expectations))
		for i, exp := range expectations {
			docs[i] = expectation.FromExpectation(exp)
		}
		return printJSON(docs)
	},
}

var expectationsRemoveCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Remove an expectation by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expectations, err := loadExpectationsFile(expectationsFile)
		if err != nil {
			return err
		}

		id := args[0]
		kept := make([]expectation.Expectation, 0, len(expectations))
		found := false
		for _, exp := range expectations {
			if exp.ID == id {
				found = true
				continue
			}
			kept = append(kept, exp)
		}
		if !found {
			return fmt.Errorf("cli: no expectation with id %q", id)
		}

		if err := saveExpectationsFile(expectationsFile, kept); err != nil {
			return err
		}
		fmt.Printf("removed expectation %q\n", id)
		return nil
	},
}

func upsertExpectation(expectations []expectation.Expectation, exp expectation.Expectation) []expectation.Expectation {
	for i, existing := range expectations {
		if existing.ID == exp.ID {
			expectations[i] = exp
			return expectations
		}
	}
	return append(expectations, exp)
}

func init() {
	rootCmd.AddCommand(expectationsCmd)
	expectationsCmd.PersistentFlags().StringVar(&expectationsFile, "file", "expectations.json", "Path to the expectations file")

	expectationsCmd.AddCommand(expectationsAddCmd)
	expectationsAddCmd.Flags().StringVar(&addID, "id", "", "Expectation ID")
	expectationsAddCmd.Flags().StringVar(&addMethod, "method", "GET", "HTTP method to match")
	expectationsAddCmd.Flags().StringVar(&addPathExact, "path", "", "URL path to match")
	expectationsAddCmd.Flags().IntVar(&addStatus, "status", 200, "Response status code")
	expectationsAddCmd.Flags().StringVar(&addBody, "body", "", "Response body")
	expectationsAddCmd.Flags().StringVar(&addForwardTo, "forward-to", "", "Forward instead of respond, e.g. http://origin:8080")

	expectationsCmd.AddCommand(expectationsListCmd)
	expectationsCmd.AddCommand(expectationsRemoveCmd)
}
