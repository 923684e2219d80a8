package main

import (
	"strconv"
	"time"

	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type dashboard struct {
	User     models.User               `json:"user"`
	Today    models.TodaySummary       `json:"today"`
	Students int                       `json:"students"`
	Classes  []string                  `json:"classes"`
	Recent   []models.AttendanceRecord `json:"recent"`
}

const dashboardRecent = 5

func newDashboardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the account, today's summary and recent scans",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			var (
				d        dashboard
				students []models.Student
			)

			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				var err error
				d.User, err = a.svc.UserDetails(gctx)
				return err
			})

			g.Go(func() error {
				var err error
				d.Today, err = a.svc.TodaySummary(gctx)
				return err
			})

			g.Go(func() error {
				var err error
				students, err = a.svc.Students(gctx)
				return err
			})

			g.Go(func() error {
				records, err := a.svc.Attendance(gctx, time.Now().Format(dateLayout))
				if err != nil {
					return err
				}

				d.Recent = records[:min(len(records), dashboardRecent)]

				return nil
			})

			if err := g.Wait(); err != nil {
				return err
			}

			d.Students = len(students)
			d.Classes, _ = campus.Distinct(students)

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(d); ok {
				return err
			}

			p.line("Signed in as %s <%s>", d.User.Name, d.User.Email)
			p.line("")

			if err := p.table(
				[]string{"STUDENTS", "CLASSES", "PRESENT TODAY", "ABSENT TODAY"},
				[][]string{{
					strconv.Itoa(d.Students),
					strconv.Itoa(len(d.Classes)),
					strconv.Itoa(d.Today.Present),
					strconv.Itoa(d.Today.Absent),
				}},
			); err != nil {
				return err
			}

			if len(d.Recent) == 0 {
				return nil
			}

			p.line("\nRecent scans")

			return p.table(recordHeaders, recordRows(d.Recent))
		}),
	}
}
