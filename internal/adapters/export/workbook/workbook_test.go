package workbook_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/physalign/internal/adapters/export/workbook"
	"github.com/okian/physalign/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func tables() (model.AlignedTable, model.AlignedTable) {
	nan := math.NaN()
	temp := model.AlignedTable{
		Modality: model.CoreTemp,
		Offsets:  []int{-61, -1, 0, 75},
		Columns: []model.AlignedColumn{
			{Label: "Exp1_山口_1回目", Subject: "山口", Values: []float64{37.5, nan, 37.25, 38}},
			{Label: "Exp1_姜_1回目", Subject: "姜", Values: []float64{nan, nan, nan, nan}},
		},
	}
	hr := model.AlignedTable{
		Modality: model.HeartRate,
		Offsets:  []int{-61, -1, 0, 75},
		Columns: []model.AlignedColumn{
			{Label: "Exp1_山口_1回目", Subject: "山口", Values: []float64{80, 81, 82, nan}},
		},
	}
	return temp, hr
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "Experiment_Data_Aligned.xlsx")
	temp, hr := tables()

	require.NoError(t, workbook.New().Write(ctx, path, temp, hr))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Core Temp", "Heart Rate"}, f.GetSheetList())

	rows, err := f.GetRows("Core Temp")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Time", "Exp1_山口_1回目", "Exp1_姜_1回目"}, rows[0])
	assert.Equal(t, []string{"-1:01", "37.5"}, rows[1])
	assert.Equal(t, []string{"-0:01"}, rows[2])
	assert.Equal(t, []string{"0:00", "37.25"}, rows[3])
	assert.Equal(t, []string{"1:15", "38"}, rows[4])

	rows, err = f.GetRows("Heart Rate")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Time", rows[0][0])
	assert.Equal(t, []string{"-0:01", "81"}, rows[2])
	assert.Equal(t, []string{"1:15"}, rows[4])
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aligned.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	temp, _ := tables()
	require.NoError(t, workbook.New().Write(ctx, path, temp))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{"Core Temp"}, f.GetSheetList())
}

func TestWriteErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	temp, _ := tables()

	err := workbook.New().Write(ctx, filepath.Join(dir, "a.xlsx"))
	assert.ErrorIs(t, err, workbook.ErrNoTables)

	err = workbook.New().Write(ctx, filepath.Join(dir, "b.xlsx"), temp, temp)
	assert.ErrorIs(t, err, workbook.ErrDuplicate)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = workbook.New().Write(cctx, filepath.Join(dir, "c.xlsx"), temp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Core Temp", workbook.SheetName(model.CoreTemp))
	assert.Equal(t, "Heart Rate", workbook.SheetName(model.HeartRate))
}
