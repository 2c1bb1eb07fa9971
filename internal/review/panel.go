// Package review is the admin view over submitted records: load once, pick a
// school, expand one record at a time, and export the selection.
package review

import (
	"context"
	"errors"
	"sync"

	"studentportal/internal/export"
	"studentportal/internal/record"
)

var (
	ErrIndexOutOfRange = errors.New("review: record index out of range")
	ErrUnknownSchool   = errors.New("review: school not in loaded records")
	ErrNoSchool        = errors.New("review: no school selected")
	ErrBusy            = errors.New("review: an export is already in progress")
)

// NoneExpanded is the Expanded value when every record is collapsed.
const NoneExpanded = -1

// Exporter bundles records for download.
type Exporter interface {
	Export(ctx context.Context, records []record.Student, label string) (*export.Bundle, error)
}

// Panel is one admin view instance.
type Panel struct {
	store record.Store

	mu        sync.Mutex
	records   []record.Student
	schools   []string
	selected  string
	expanded  int
	exporting bool
}

// View is a consistent snapshot of the panel.
type View struct {
	Schools  []string
	Selected string
	Records  []record.Student
	Expanded int
}

// NewPanel creates an empty panel; call Load to mount it.
func NewPanel(store record.Store) *Panel {
	return &Panel{store: store, expanded: NoneExpanded}
}

// Load fetches the full collection, derives the school list in first-seen order
// and selects the first school when none is selected yet.
func (p *Panel) Load(ctx context.Context) error {
	records, err := p.store.ListAll(ctx)
	if err != nil {
		return err
	}
	schools := record.Schools(records)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = records
	p.schools = schools
	if p.selected != "" && !contains(schools, p.selected) {
		p.selected = ""
		p.expanded = NoneExpanded
	}
	if p.selected == "" && len(schools) > 0 {
		p.selected = schools[0]
	}
	if p.expanded >= len(record.BySchool(p.records, p.selected)) {
		p.expanded = NoneExpanded
	}
	return nil
}

// Schools returns the distinct school names of the loaded records.
func (p *Panel) Schools() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.schools...)
}

// Selected returns the active school filter.
func (p *Panel) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// SelectSchool sets the active filter and collapses any expanded record.
// An empty name clears the filter.
func (p *Panel) SelectSchool(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name != "" && !contains(p.schools, name) {
		return ErrUnknownSchool
	}
	p.selected = name
	p.expanded = NoneExpanded
	return nil
}

// Filtered returns the loaded records of the selected school in load order.
func (p *Panel) Filtered() []record.Student {
	p.mu.Lock()
	defer p.mu.Unlock()
	return record.BySchool(p.records, p.selected)
}

// ToggleExpand expands record i of Filtered, or collapses it if it is the expanded one.
func (p *Panel) ToggleExpand(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(record.BySchool(p.records, p.selected)) {
		return ErrIndexOutOfRange
	}
	if p.expanded == i {
		p.expanded = NoneExpanded
	} else {
		p.expanded = i
	}
	return nil
}

// Expanded returns the expanded index or NoneExpanded.
func (p *Panel) Expanded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expanded
}

// View returns everything a client needs to render the panel.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return View{
		Schools:  append([]string(nil), p.schools...),
		Selected: p.selected,
		Records:  record.BySchool(p.records, p.selected),
		Expanded: p.expanded,
	}
}

// Export bundles the filtered records. It refuses without a selected school
// and rejects a second export while one is running.
func (p *Panel) Export(ctx context.Context, exp Exporter) (*export.Bundle, error) {
	p.mu.Lock()
	if p.selected == "" {
		p.mu.Unlock()
		return nil, ErrNoSchool
	}
	if p.exporting {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	records := record.BySchool(p.records, p.selected)
	label := p.selected
	p.exporting = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.exporting = false
		p.mu.Unlock()
	}()
	return exp.Export(ctx, records, label)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
