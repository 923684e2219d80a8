package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/spf13/cobra"
)

func newCallCommand(a *app) *cobra.Command {
	var (
		id   string
		data string
	)

	cmd := &cobra.Command{
		Use:   "call <endpoint>",
		Short: "Send any catalog endpoint and print the response data",
		Long: "Sends a named endpoint through the authenticated client.\n" +
			"--data takes inline JSON, @file to read a file, or - to read stdin.\n" +
			"Run 'campusctl endpoints' for the list of names.",
		Args: cobra.ExactArgs(1),
		RunE: a.withService(func(cmd *cobra.Command, args []string) error {
			body, err := readBody(cmd, data)
			if err != nil {
				return err
			}

			res, err := a.svc.Call(cmd.Context(), args[0], id, body)
			if err != nil {
				return err
			}

			p := a.printer(cmd.OutOrStdout())

			var v any
			if len(res.Data) > 0 {
				if err := json.Unmarshal(res.Data, &v); err != nil {
					return fmt.Errorf("decoding response data: %w", err)
				}
			}

			if ok, err := p.structured(v); ok {
				return err
			}

			if res.Message != "" {
				p.line("%s", res.Message)
			}

			if v == nil {
				return nil
			}

			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}

			p.line("%s", out)

			return nil
		}),
	}

	cmd.Flags().StringVar(&id, "id", "", "value for the :id path segment")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}

func readBody(cmd *cobra.Command, data string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)

	switch {
	case data == "":
		return nil, nil
	case data == "-":
		raw, err = io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(data, "@"):
		raw, err = os.ReadFile(strings.TrimPrefix(data, "@"))
	default:
		raw = []byte(data)
	}

	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return json.RawMessage(raw), nil
}

func newEndpointsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List endpoint names accepted by call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := campus.EndpointNames()
			endpoints := make([]campus.Endpoint, 0, len(names))

			for _, name := range names {
				e, _ := campus.LookupEndpoint(name)
				endpoints = append(endpoints, e)
			}

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(endpoints); ok {
				return err
			}

			rows := make([][]string, 0, len(endpoints))
			for _, e := range endpoints {
				rows = append(rows, []string{e.Name, e.Method, e.Path})
			}

			return p.table([]string{"NAME", "METHOD", "PATH"}, rows)
		},
	}
}
