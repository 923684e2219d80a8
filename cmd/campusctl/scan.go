package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexjbarnes/campusctl/internal/api"
	apperrors "github.com/alexjbarnes/campusctl/internal/errors"
	"github.com/spf13/cobra"
)

type scanResult struct {
	Payload   string `json:"payload"`
	StudentID string `json:"studentId,omitempty"`
	Name      string `json:"name,omitempty"`
	Lecture   int    `json:"lecture,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// fatalScanError reports whether every later scan would fail the same
// way as this one.
func fatalScanError(err error) bool {
	return api.IsSessionExpired(err) ||
		errors.Is(err, apperrors.ErrNotAuthenticated) ||
		errors.Is(err, context.Canceled)
}

func newScanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Mark attendance from QR payloads read on stdin, one per line",
		Long: "Reads QR payloads from stdin, one per line, and marks attendance for each.\n" +
			"A payload is either a bare student ID or ID:<id>|Name:<name>|Roll:<roll>.\n" +
			"Point a keyboard-wedge scanner at the terminal or pipe a file in.",
		Args: cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			p := a.printer(cmd.OutOrStdout())
			live := p.format == formatTable

			results := []scanResult{}

			var (
				failed int
				fatal  error
			)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				res := scanResult{Payload: line}

				payload, m, err := a.svc.Scan(cmd.Context(), line)
				res.StudentID = payload.StudentID
				res.Name = payload.Name

				if err != nil {
					failed++
					res.Error = err.Error()
				} else {
					res.Lecture = m.Record.Lecture
					res.Message = m.Message

					if res.Name == "" {
						res.Name = m.Record.Name
					}
				}

				results = append(results, res)

				if live {
					if res.Error != "" {
						p.line("FAIL  %s: %s", line, res.Error)
					} else {
						p.line("OK    %s %s (lecture %d)", res.StudentID, res.Name, res.Lecture)
					}
				}

				if err != nil && fatalScanError(err) {
					fatal = err
					break
				}
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}

			if !live {
				if _, err := p.structured(results); err != nil {
					return err
				}
			} else {
				p.line("%d marked, %d failed", len(results)-failed, failed)
			}

			if fatal != nil {
				return fatal
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(results))
			}

			return nil
		}),
	}
}
