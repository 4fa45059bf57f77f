package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kaytu-io/elastic-companion/pkg/companion-es-sdk"
	"github.com/spf13/cobra"
)

// confirm prints prompt and reports whether the user typed exactly "yes".
func (a *app) confirm(cmd *cobra.Command, prompt string) (bool, error) {
	if a.stdin == nil {
		a.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := a.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.TrimRight(line, "\r\n") == "yes", nil
}

// parseQuery reads a search body given inline as JSON or as the path of a
// JSON file. An empty argument means no query.
func parseQuery(arg string) (map[string]any, error) {
	if arg == "" {
		return nil, nil
	}
	raw := []byte(arg)
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		if raw, err = os.ReadFile(arg); err != nil {
			return nil, err
		}
	}

	var query map[string]any
	if err := json.Unmarshal(raw, &query); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return query, nil
}

type rangeFlags struct {
	field string
	gte   string
	lt    string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.field, "range-field", "", "Only documents whose field lies in [--gte, --lt)")
	cmd.Flags().StringVar(&r.gte, "gte", "", "Inclusive lower bound for --range-field")
	cmd.Flags().StringVar(&r.lt, "lt", "", "Exclusive upper bound for --range-field")
}

// apply restricts query to the configured range, if any.
func (r *rangeFlags) apply(query map[string]any) (map[string]any, error) {
	if r.field == "" {
		if r.gte != "" || r.lt != "" {
			return nil, errors.New("--gte and --lt require --range-field")
		}
		return query, nil
	}
	if r.gte == "" && r.lt == "" {
		return nil, errors.New("--range-field requires --gte or --lt")
	}
	return companion.WithFilters(query, companion.NewRangeFilter(r.field, "", r.gte, r.lt, "")), nil
}

// queryFromFlags combines --query with the range flags.
func queryFromFlags(arg string, r *rangeFlags) (map[string]any, error) {
	query, err := parseQuery(arg)
	if err != nil {
		return nil, err
	}
	return r.apply(query)
}
