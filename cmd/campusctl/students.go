package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexjbarnes/campusctl/internal/campus"
	"github.com/alexjbarnes/campusctl/internal/models"
	"github.com/spf13/cobra"
)

func newStudentsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "students",
		Aliases: []string{"student"},
		Short:   "List and manage students",
	}

	cmd.AddCommand(
		newStudentsListCommand(a),
		newStudentsGetCommand(a),
		newStudentsAddCommand(a),
		newStudentsUpdateCommand(a),
		newStudentsDeleteCommand(a),
	)

	return cmd
}

func studentRows(students []models.Student) [][]string {
	rows := make([][]string, 0, len(students))
	for _, s := range students {
		rows = append(rows, []string{s.StudentID, s.Name, s.Roll, s.ClassName, s.Division})
	}

	return rows
}

var studentHeaders = []string{"STUDENT ID", "NAME", "ROLL", "CLASS", "DIVISION"}

func newStudentsListCommand(a *app) *cobra.Command {
	var (
		filter  campus.StudentFilter
		sortBy  string
		desc    bool
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			students, err := a.svc.Students(cmd.Context())
			if err != nil {
				return err
			}

			students = campus.Filter(students, filter)

			if err := campus.Sort(students, sortBy, desc); err != nil {
				return err
			}

			total := len(students)
			students = campus.Page(students, page, perPage)

			p := a.printer(cmd.OutOrStdout())
			if ok, err := p.structured(students); ok {
				return err
			}

			if err := p.table(studentHeaders, studentRows(students)); err != nil {
				return err
			}

			if perPage > 0 {
				pages := (total + perPage - 1) / perPage
				p.line("\nPage %d of %d (%d students)", max(page, 1), max(pages, 1), total)
			}

			return nil
		}),
	}

	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "match name, student ID, roll or class")
	cmd.Flags().StringVar(&filter.ClassName, "class", "", "only this class")
	cmd.Flags().StringVar(&filter.Division, "division", "", "only this division")
	cmd.Flags().StringVar(&sortBy, "sort", campus.SortByRoll, "sort by name, roll, studentId or className")
	cmd.Flags().BoolVar(&desc, "desc", false, "reverse the sort order")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "students per page (0 shows all)")

	return cmd
}

type studentCard struct {
	models.Student
	QR string `json:"qr"`
}

func (a *app) printStudent(cmd *cobra.Command, s models.Student) error {
	card := studentCard{Student: s, QR: campus.PayloadFor(s).String()}

	p := a.printer(cmd.OutOrStdout())
	if ok, err := p.structured(card); ok {
		return err
	}

	rows := [][]string{
		{"Student ID", s.StudentID},
		{"Name", s.Name},
		{"Roll", s.Roll},
		{"Class", s.ClassName},
		{"Division", s.Division},
	}

	for _, extra := range [][]string{
		{"Father", s.FatherName},
		{"Mobile", s.Mobile},
		{"Address", s.Address},
		{"Photo", s.Photo},
	} {
		if extra[1] != "" {
			rows = append(rows, extra)
		}
	}

	rows = append(rows, []string{"QR", card.QR})

	return p.table([]string{"FIELD", "VALUE"}, rows)
}

func newStudentsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <student-id>",
		Short: "Show one student and their QR payload",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.Student(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return a.printStudent(cmd, s)
		}),
	}
}

func studentFlags(cmd *cobra.Command, n *models.NewStudent) {
	cmd.Flags().StringVar(&n.Name, "name", "", "full name")
	cmd.Flags().StringVar(&n.Roll, "roll", "", "roll number")
	cmd.Flags().StringVar(&n.ClassName, "class", "", "class name")
	cmd.Flags().StringVar(&n.Division, "division", "", "division")
	cmd.Flags().StringVar(&n.FatherName, "father", "", "father's name")
	cmd.Flags().StringVar(&n.Mobile, "mobile", "", "mobile number")
	cmd.Flags().StringVar(&n.Address, "address", "", "address")
}

func newStudentsAddCommand(a *app) *cobra.Command {
	var (
		n         models.NewStudent
		photoPath string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student",
		Args:  cobra.NoArgs,
		RunE: a.withLogin(func(cmd *cobra.Command, _ []string) error {
			var photo *campus.Photo

			if photoPath != "" {
				f, err := os.Open(photoPath)
				if err != nil {
					return fmt.Errorf("opening photo: %w", err)
				}
				defer f.Close()

				photo = &campus.Photo{Filename: filepath.Base(photoPath), Content: f}
			}

			s, err := a.svc.AddStudent(cmd.Context(), n, photo)
			if err != nil {
				return err
			}

			return a.printStudent(cmd, s)
		}),
	}

	studentFlags(cmd, &n)
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo to upload")

	for _, name := range []string{"name", "roll", "class"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newStudentsUpdateCommand(a *app) *cobra.Command {
	var n models.NewStudent

	cmd := &cobra.Command{
		Use:   "update <student-id>",
		Short: "Change a student's details",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			if n == (models.NewStudent{}) {
				return fmt.Errorf("nothing to update")
			}

			s, err := a.svc.UpdateStudent(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}

			return a.printStudent(cmd, s)
		}),
	}

	studentFlags(cmd, &n)

	return cmd
}

func newStudentsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <student-id>...",
		Short: "Delete students",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withLogin(func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := a.svc.DeleteStudent(cmd.Context(), id); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}

			return nil
		}),
	}
}
