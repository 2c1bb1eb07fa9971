package export

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"studentportal/internal/record"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image-body")

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	mux.HandleFunc("/slow.gif", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("GIF89a"))
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func strptr(s string) *string { return &s }

func student(name, school string, image *string) record.Student {
	return record.Student{
		ID:         name,
		SchoolName: school,
		ClassName:  "10",
		Section:    "B",
		Name:       name,
		RollNumber: "7",
		Department: "Science",
		Year:       "2024",
		ImageURL:   image,
		CreatedAt:  time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = body
	}
	return entries
}

func sheetRows(t *testing.T, xlsx []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(xlsx))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestBundler_EmptyRecordsRefused(t *testing.T) {
	b := NewBundler(nil, nil)
	bundle, err := b.Export(context.Background(), nil, "Greenwood")
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Nil(t, bundle)
}

func TestBundler_SingleRecordWithImage(t *testing.T) {
	srv := imageServer(t)
	url := srv.URL + "/img.png"
	b := NewBundler(srv.Client(), time.UTC)

	bundle, err := b.Export(context.Background(), []record.Student{student("Jo Ann", "Greenwood", &url)}, "Greenwood")
	require.NoError(t, err)

	assert.Equal(t, "students_data_Greenwood.zip", bundle.Filename)
	assert.Equal(t, 1, bundle.Rows)
	assert.Equal(t, []string{"student_images/jo_ann_1.png"}, bundle.Images)
	assert.Empty(t, bundle.Failures)

	entries := readZip(t, bundle.Data)
	assert.Contains(t, entries, "students-Greenwood.xlsx")
	assert.Contains(t, entries, "student_images/")
	assert.Equal(t, pngBytes, entries["student_images/jo_ann_1.png"])

	rows := sheetRows(t, entries["students-Greenwood.xlsx"])
	require.Len(t, rows, 2)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"Jo Ann", "7", "Science", "2024", "10", "B", "Greenwood", url, "2024-03-01 09:30:00"}, rows[1])
}

func TestBundler_FailedFetchKeepsSpreadsheetAndFolder(t *testing.T) {
	srv := imageServer(t)
	url := srv.URL + "/missing.png"
	b := NewBundler(srv.Client(), time.UTC)

	bundle, err := b.Export(context.Background(), []record.Student{student("Jo Ann", "Greenwood", &url)}, "Greenwood")
	require.NoError(t, err)

	require.Len(t, bundle.Failures, 1)
	assert.Equal(t, 0, bundle.Failures[0].Index)
	assert.Equal(t, url, bundle.Failures[0].URL)
	assert.Empty(t, bundle.Images)

	entries := readZip(t, bundle.Data)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "students-Greenwood.xlsx")
	assert.Contains(t, entries, "student_images/")

	rows := sheetRows(t, entries["students-Greenwood.xlsx"])
	require.Len(t, rows, 2)
	assert.Equal(t, url, rows[1][7])
}

func TestBundler_MixedBatch(t *testing.T) {
	srv := imageServer(t)
	b := NewBundler(srv.Client(), time.UTC)
	records := []record.Student{
		student("Ada Lovelace", "A", strptr(srv.URL+"/img.png")),
		student("No Photo", "A", nil),
		student("Broken Link", "A", strptr(srv.URL+"/missing.png")),
		student("Slow  Poke", "A", strptr(srv.URL+"/slow.gif")),
		student("Unreachable", "A", strptr("http://127.0.0.1:1/x.png")),
	}

	bundle, err := b.Export(context.Background(), records, "A")
	require.NoError(t, err)

	assert.Equal(t, []string{"student_images/ada_lovelace_1.png", "student_images/slow_poke_4.gif"}, bundle.Images)
	require.Len(t, bundle.Failures, 2)
	assert.Equal(t, 2, bundle.Failures[0].Index)
	assert.Equal(t, 4, bundle.Failures[1].Index)

	entries := readZip(t, bundle.Data)
	assert.Len(t, entries, 4)

	rows := sheetRows(t, entries["students-A.xlsx"])
	require.Len(t, rows, len(records)+1)
	assert.Equal(t, NoImage, rows[2][7])
	for i, r := range records {
		assert.Equal(t, r.Name, rows[i+1][0], "row order follows record order")
	}
}

func TestBundler_TimestampUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	b := NewBundler(nil, loc)
	bundle, err := b.Export(context.Background(), []record.Student{student("X", "", nil)}, "")
	require.NoError(t, err)

	assert.Equal(t, "students_data_all.zip", bundle.Filename)
	entries := readZip(t, bundle.Data)
	rows := sheetRows(t, entries["students-all.xlsx"])
	assert.Equal(t, "2024-03-01 14:30:00", rows[1][8])
}
