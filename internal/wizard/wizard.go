// Package wizard implements the four-step student submission form:
// school, class, section, then the student's own fields and an optional image.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"studentportal/internal/imagehost"
	"studentportal/internal/record"
)

var (
	ErrIncomplete     = errors.New("wizard: required fields for this step are empty")
	ErrFirstStep      = errors.New("wizard: already on the first step")
	ErrLastStep       = errors.New("wizard: already on the last step")
	ErrUnknownField   = errors.New("wizard: unknown field")
	ErrFieldNotOnStep = errors.New("wizard: field is not editable on this step")
	ErrNotStudentStep = errors.New("wizard: only allowed on the student step")
	ErrBusy           = errors.New("wizard: a submission is already in progress")
	ErrEmptyImage     = errors.New("wizard: image is empty")
	ErrImageTooLarge  = errors.New("wizard: image exceeds size limit")
	ErrNotImage       = errors.New("wizard: attachment is not an image")
	ErrUploadFailed   = errors.New("wizard: image upload failed")
	ErrSaveFailed     = errors.New("wizard: failed to save student data")
)

// Notifier is told about every record the wizard writes.
type Notifier interface {
	RecordCreated(ctx context.Context, s record.Student) error
}

// Deps are the collaborators used on submit.
type Deps struct {
	Uploader      imagehost.Uploader
	Store         record.Store
	Notifier      Notifier
	MaxImageBytes int
	Now           func() time.Time
}

// Wizard is one in-progress submission. It is safe for concurrent use;
// a submit in flight blocks every other mutation with ErrBusy.
type Wizard struct {
	mu         sync.Mutex
	state      State
	submitting bool
	deps       Deps
}

// New returns a wizard on the first step with every field empty.
func New(deps Deps) *Wizard {
	if deps.Uploader == nil {
		deps.Uploader = imagehost.Disabled{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Wizard{state: Initial(), deps: deps}
}

// State returns a snapshot of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Submitting reports whether a submit is outstanding.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// CanAdvance reports whether Next (or Submit on the last step) would pass its guard.
func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Complete(w.state.Step)
}

// Edit sets a field of the current step. The step never changes.
func (w *Wizard) Edit(field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrBusy
	}
	step, ok := stepOf(field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if step != w.state.Step {
		return fmt.Errorf("%w: %q belongs to the %s step", ErrFieldNotOnStep, field, step)
	}
	w.state.set(field, value)
	return nil
}

// Next moves forward one step when the current step is complete.
// On failure the state is left as it was.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrBusy
	}
	if w.state.Step >= StepStudent {
		return ErrLastStep
	}
	if !w.state.Complete(w.state.Step) {
		return ErrIncomplete
	}
	w.state.Step++
	return nil
}

// Back moves to the previous step, keeping everything entered so far.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrBusy
	}
	if w.state.Step <= StepSchool {
		return ErrFirstStep
	}
	w.state.Step--
	return nil
}

// Attach sets the student image. The content must sniff as image/*.
func (w *Wizard) Attach(filename string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if w.deps.MaxImageBytes > 0 && len(data) > w.deps.MaxImageBytes {
		return ErrImageTooLarge
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	if filename == "" {
		filename = "image" + mt.Extension()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrBusy
	}
	if w.state.Step != StepStudent {
		return ErrNotStudentStep
	}
	w.state.Student.Image = &Image{
		Filename:    filepath.Base(filename),
		ContentType: mt.String(),
		Data:        append([]byte(nil), data...),
	}
	return nil
}

// Detach removes the student image.
func (w *Wizard) Detach() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrBusy
	}
	if w.state.Step != StepStudent {
		return ErrNotStudentStep
	}
	w.state.Student.Image = nil
	return nil
}

// Submit uploads the image (if any), writes one record and resets the wizard.
// On any failure nothing is written and the state is kept so the caller can retry.
func (w *Wizard) Submit(ctx context.Context) (record.Student, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return record.Student{}, ErrBusy
	}
	if w.state.Step != StepStudent {
		w.mu.Unlock()
		return record.Student{}, ErrNotStudentStep
	}
	if !w.state.Complete(StepStudent) {
		w.mu.Unlock()
		return record.Student{}, ErrIncomplete
	}
	snapshot := w.state
	w.submitting = true
	w.mu.Unlock()

	saved, err := w.submit(ctx, snapshot)

	w.mu.Lock()
	w.submitting = false
	if err == nil {
		w.state = Initial()
	}
	w.mu.Unlock()
	return saved, err
}

func (w *Wizard) submit(ctx context.Context, st State) (record.Student, error) {
	var imageURL *string
	if img := st.Student.Image; img != nil {
		url, err := w.deps.Uploader.Upload(ctx, imagehost.Image{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Data:        img.Data,
		})
		if err != nil {
			log.Printf("wizard: image upload failed: %v", err)
			return record.Student{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		imageURL = &url
	}

	rec := record.Student{
		SchoolName: st.SchoolName,
		ClassName:  st.ClassName,
		Section:    st.Section,
		Name:       st.Student.Name,
		RollNumber: st.Student.RollNumber,
		Department: st.Student.Department,
		Year:       st.Student.Year,
		ImageURL:   imageURL,
		CreatedAt:  w.deps.Now().UTC(),
	}
	saved, err := w.deps.Store.Insert(ctx, rec)
	if err != nil {
		log.Printf("wizard: insert failed: %v", err)
		return record.Student{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if w.deps.Notifier != nil {
		if err := w.deps.Notifier.RecordCreated(ctx, saved); err != nil {
			log.Printf("wizard: notify record %s failed: %v", saved.ID, err)
		}
	}
	return saved, nil
}
