package importfile

import (
	"context"
	"testing"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"

	"github.com/xuri/excelize/v2"
)

func TestValidate_Stages(t *testing.T) {
	ctx := context.Background()
	v := NewValidator()

	cases := []struct {
		name      string
		data      string
		wantErr   func(error) bool
		rowErrors int
	}{
		{
			name:    "empty file",
			data:    "  \n",
			wantErr: func(err error) bool { return errors.Is(err, errors.ErrFileRead) },
		},
		{
			name: "header mismatch skips rows",
			data: "establishment_id;firstname\nE1;",
			wantErr: func(err error) bool {
				var h errors.HeaderMismatchError
				return errors.As(err, &h) && len(h.Missing) == 4
			},
		},
		{
			name: "row errors",
			data: studentHeader + "\nE1;Jean;;2012-05-10;M;college;true",
			wantErr: func(err error) bool {
				var r errors.RowValidationErrors
				return errors.As(err, &r) && len(r) == 1
			},
			rowErrors: 1,
		},
		{
			name:    "clean",
			data:    studentHeader + "\nE1;Jean;Dupont;2012-05-10;M;college;true",
			wantErr: func(err error) bool { return err == nil },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := v.Validate(ctx, model.ImportFile{Name: "students.csv", Data: []byte(tc.data)}, model.RoleStudent)
			if !tc.wantErr(report.Err) {
				t.Fatalf("unexpected err %v", report.Err)
			}
			if len(report.RowErrors) != tc.rowErrors {
				t.Fatalf("row errors = %v", report.RowErrors)
			}
			if report.OK() != (report.Err == nil) {
				t.Fatalf("OK() inconsistent with Err")
			}
		})
	}
}

func TestValidate_UnreadableFileReportsAllRequiredMissing(t *testing.T) {
	report := NewValidator().Validate(context.Background(), model.ImportFile{Name: "x.csv"}, model.RoleParent)
	if report.Header.OK || len(report.Header.Missing) != 4 {
		t.Fatalf("header = %+v", report.Header)
	}
}

func TestValidate_Workbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []string{"establishment_id", "firstname", "lastname", "email"}
	for i, h := range header {
		cellName, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cellName, h)
	}
	values := []string{"E1", "Paul", "Martin", "paul@"}
	for i, val := range values {
		cellName, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(sheet, cellName, val)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	report := NewValidator().Validate(context.Background(), model.ImportFile{Name: "teachers.XLSX", Data: buf.Bytes()}, model.RoleTeacher)
	if !report.Header.OK {
		t.Fatalf("header = %+v", report.Header)
	}
	if report.Rows != 1 {
		t.Fatalf("blank row should be dropped, rows = %d", report.Rows)
	}
	if len(report.RowErrors) != 1 || report.RowErrors[0].Field != "email" || report.RowErrors[0].Line != 2 {
		t.Fatalf("row errors = %+v", report.RowErrors)
	}
}

func TestValidate_UnknownRole(t *testing.T) {
	report := NewValidator().Validate(context.Background(), model.ImportFile{Name: "a.csv", Data: []byte("a")}, model.Role("x"))
	if !errors.Is(report.Err, errors.ErrUnknownRole) {
		t.Fatalf("err = %v", report.Err)
	}
}
