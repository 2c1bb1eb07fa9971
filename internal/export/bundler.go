// Package export builds the downloadable archive for one school: a spreadsheet
// of every record plus the records' images fetched from their URLs.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"studentportal/internal/metrics"
	"studentportal/internal/record"
)

// ErrNoRecords is returned before any work when there is nothing to export.
var ErrNoRecords = errors.New("export: no students to download")

// SheetName is the worksheet holding the rows.
const SheetName = "Students"

// NoImage is written in the Image_URL column for records without an image.
const NoImage = "No Image"

// TimestampLayout formats the submission time column.
const TimestampLayout = "2006-01-02 15:04:05"

// Columns is the fixed header row.
var Columns = []string{"Name", "Roll_Number", "Department", "Year", "Class", "Section", "School", "Image_URL", "Timestamp"}

const maxImageBytes = 32 << 20

// FetchFailure describes one image that could not be included.
type FetchFailure struct {
	Index int
	Name  string
	URL   string
	Err   error
}

// Bundle is a finished archive.
type Bundle struct {
	Filename    string
	Spreadsheet string
	Data        []byte
	Rows        int
	Images      []string
	Failures    []FetchFailure
}

// Bundler turns records into a zip archive.
type Bundler struct {
	HTTP     *http.Client
	Location *time.Location
	now      func() time.Time
}

// NewBundler creates a bundler fetching images with client and formatting
// timestamps in loc. Nil arguments get defaults.
func NewBundler(client *http.Client, loc *time.Location) *Bundler {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Bundler{HTTP: client, Location: loc, now: time.Now}
}

// Export builds the archive for records labelled by school.
// Image fetches run concurrently; a failed fetch is logged and reported in
// Bundle.Failures but never fails the export.
func (b *Bundler) Export(ctx context.Context, records []record.Student, school string) (*Bundle, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	start := b.now()
	defer func() { metrics.ExportDuration.Observe(time.Since(start).Seconds()) }()

	sheet, err := b.spreadsheet(records)
	if err != nil {
		return nil, fmt.Errorf("export: build spreadsheet: %w", err)
	}

	fetched := b.fetchAll(ctx, records)

	bundle := &Bundle{
		Filename:    ArchiveName(school),
		Spreadsheet: SpreadsheetName(school),
		Rows:        len(records),
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := b.now()

	if err := writeEntry(zw, bundle.Spreadsheet, modified, sheet); err != nil {
		return nil, err
	}
	if _, err := zw.CreateHeader(&zip.FileHeader{Name: ImageFolder, Modified: modified}); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", ImageFolder, err)
	}
	for _, f := range fetched {
		if f.err != nil {
			bundle.Failures = append(bundle.Failures, FetchFailure{Index: f.index, Name: records[f.index].Name, URL: f.url, Err: f.err})
			continue
		}
		if err := writeEntry(zw, f.entry, modified, f.data); err != nil {
			return nil, err
		}
		bundle.Images = append(bundle.Images, f.entry)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: finish archive: %w", err)
	}

	bundle.Data = buf.Bytes()
	if len(bundle.Failures) > 0 {
		log.Printf("export %s: %d of %d images could not be fetched", bundle.Filename, len(bundle.Failures), len(bundle.Failures)+len(bundle.Images))
	}
	return bundle, nil
}

func (b *Bundler) spreadsheet(records []record.Student) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}

	for i, r := range records {
		image := NoImage
		if r.HasImage() {
			image = *r.ImageURL
		}
		row := []interface{}{
			r.Name,
			r.RollNumber,
			r.Department,
			r.Year,
			r.ClassName,
			r.Section,
			r.SchoolName,
			image,
			r.CreatedAt.In(b.Location).Format(TimestampLayout),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	out, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type fetched struct {
	index int
	url   string
	entry string
	data  []byte
	err   error
}

// fetchAll starts one fetch per record with an image and waits for all of them
// to settle. Results come back in record order.
func (b *Bundler) fetchAll(ctx context.Context, records []record.Student) []fetched {
	results := make([]*fetched, len(records))
	var wg sync.WaitGroup
	for i, r := range records {
		if !r.HasImage() {
			continue
		}
		res := &fetched{index: i, url: *r.ImageURL, entry: ImageEntry(r.Name, i, *r.ImageURL)}
		results[i] = res
		wg.Add(1)
		go func(res *fetched) {
			defer wg.Done()
			res.data, res.err = b.fetch(ctx, res.url)
			if res.err != nil {
				metrics.ImageFetches.WithLabelValues("failed").Inc()
				log.Printf("export: fetch image %s failed: %v", res.url, res.err)
				return
			}
			metrics.ImageFetches.WithLabelValues("ok").Inc()
		}(res)
	}
	wg.Wait()

	out := make([]fetched, 0, len(records))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

func (b *Bundler) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return data, nil
}

func writeEntry(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("export: create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("export: write %s: %w", name, err)
	}
	return nil
}
