package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dispatchd/dispatchd/pkg/config"
	"github.com/dispatchd/dispatchd/pkg/expectation"
)

// loadExpectationsFile reads path as a JSON array of expectation
// documents, schema-validating each one the same way `serve` does so a
// hand-edited file is rejected with a pointed error instead of an
// obscure decode failure. A missing file is treated as an empty list,
// so `expectations add` works against a brand-new file.
func loadExpectationsFile(path string) ([]expectation.Expectation, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read %s: %w", path, err)
	}
	if err := validateExpectationDocuments(config.NewExpectationValidator(), raw); err != nil {
		return nil, err
	}
	return expectation.DecodeDocuments(raw)
}

// saveExpectationsFile writes expectations back to path as a JSON array.
func saveExpectationsFile(path string, expectations []expectation.Expectation) error {
	raw, err := expectation.EncodeDocuments(expectations)
	if err != nil {
		return fmt.Errorf("cli: encode expectations: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("cli: write %s: %w", path, err)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
