package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}

	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

type printer struct {
	w      io.Writer
	format string
}

func (a *app) printer(w io.Writer) printer {
	return printer{w: w, format: a.output}
}

// structured writes v when the format is json or yaml and reports
// whether it did. Table output is left to the caller.
func (p printer) structured(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")

		return true, enc.Encode(v)
	case formatYAML:
		return true, writeYAML(p.w, v)
	}

	return false, nil
}

// writeYAML goes through JSON first so field names match the API.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("converting output: %w", err)
	}

	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return enc.Close()
}

// blockStyle drops the flow and quoting styles a JSON document parses
// with.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func (p printer) table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
