package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studentportal/internal/imagehost"
	"studentportal/internal/record"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, img imagehost.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) RecordCreated(ctx context.Context, s record.Student) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

type failingStore struct {
	err error
}

func (f failingStore) Insert(context.Context, record.Student) (record.Student, error) {
	return record.Student{}, f.err
}

func (f failingStore) ListAll(context.Context) ([]record.Student, error) {
	return nil, f.err
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newWizard(store record.Store, up imagehost.Uploader) *Wizard {
	return New(Deps{
		Uploader:      up,
		Store:         store,
		MaxImageBytes: 1 << 10,
		Now:           func() time.Time { return fixedNow },
	})
}

// fill drives a wizard through the first three steps onto the student step.
func fill(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.Edit(FieldSchoolName, "Greenwood"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Edit(FieldClassName, "10"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Edit(FieldSection, "B"))
	require.NoError(t, w.Next())
	require.NoError(t, w.Edit(FieldName, "Jo Ann"))
	require.NoError(t, w.Edit(FieldRollNumber, "42"))
	require.NoError(t, w.Edit(FieldDepartment, "Science"))
	require.NoError(t, w.Edit(FieldYear, "2024"))
}

func TestNew_InitialState(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)
	st := w.State()
	assert.Equal(t, StepSchool, st.Step)
	assert.Equal(t, Initial(), st)
	assert.Nil(t, st.Student.Image)
	assert.False(t, w.CanAdvance())
}

func TestWizard_NextGuardedByStepFields(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)

	assert.ErrorIs(t, w.Next(), ErrIncomplete)
	assert.Equal(t, StepSchool, w.State().Step)

	require.NoError(t, w.Edit(FieldSchoolName, "   "))
	assert.ErrorIs(t, w.Next(), ErrIncomplete, "whitespace-only counts as empty")
	assert.Equal(t, StepSchool, w.State().Step)

	require.NoError(t, w.Edit(FieldSchoolName, "Greenwood"))
	assert.True(t, w.CanAdvance())
	require.NoError(t, w.Next())
	assert.Equal(t, StepClass, w.State().Step)

	assert.ErrorIs(t, w.Next(), ErrIncomplete)
	assert.Equal(t, StepClass, w.State().Step)
}

func TestWizard_EditOnlyCurrentStepFields(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)

	err := w.Edit(FieldClassName, "10")
	assert.ErrorIs(t, err, ErrFieldNotOnStep)
	assert.Equal(t, "", w.State().ClassName)

	assert.ErrorIs(t, w.Edit("favouriteColour", "blue"), ErrUnknownField)

	require.NoError(t, w.Edit(FieldSchoolName, "Greenwood"))
	assert.Equal(t, StepSchool, w.State().Step, "edits never move the wizard")
}

func TestWizard_NextThenBackIsReversible(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)
	fill(t, w)
	before := w.State()

	require.NoError(t, w.Back())
	require.NoError(t, w.Next())
	assert.Equal(t, before, w.State())

	require.NoError(t, w.Back())
	require.NoError(t, w.Back())
	require.NoError(t, w.Back())
	assert.Equal(t, StepSchool, w.State().Step)
	assert.ErrorIs(t, w.Back(), ErrFirstStep)

	after := w.State()
	assert.Equal(t, before.SchoolName, after.SchoolName)
	assert.Equal(t, before.ClassName, after.ClassName)
	assert.Equal(t, before.Section, after.Section)
	assert.Equal(t, before.Student, after.Student, "back keeps data entered on later steps")
}

func TestWizard_NextOnLastStep(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)
	fill(t, w)
	assert.ErrorIs(t, w.Next(), ErrLastStep)
	assert.Equal(t, StepStudent, w.State().Step)
}

func TestWizard_GuardSoundness(t *testing.T) {
	// Walk every reachable state through a fixed script of edits and moves and
	// check that every step at or before the current one is complete.
	w := newWizard(record.NewMemory(), nil)
	script := []func() error{
		w.Next,
		func() error { return w.Edit(FieldSchoolName, "S") },
		w.Next,
		w.Back,
		w.Next,
		w.Next,
		func() error { return w.Edit(FieldClassName, "C") },
		w.Next,
		func() error { return w.Edit(FieldSection, "X") },
		w.Back,
		w.Next,
		w.Next,
		w.Next,
	}
	for _, step := range script {
		_ = step()
		st := w.State()
		for s := StepSchool; s < st.Step; s++ {
			assert.True(t, st.Complete(s), "step %s must be complete when on %s", s, st.Step)
		}
	}
}

func TestWizard_AttachImage(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)
	assert.ErrorIs(t, w.Attach("a.png", pngBytes), ErrNotStudentStep)

	fill(t, w)
	assert.ErrorIs(t, w.Attach("a.png", nil), ErrEmptyImage)
	assert.ErrorIs(t, w.Attach("notes.txt", []byte("just some text")), ErrNotImage)
	assert.ErrorIs(t, w.Attach("big.png", append(pngBytes, make([]byte, 2<<10)...)), ErrImageTooLarge)

	require.NoError(t, w.Attach("../../photo.png", pngBytes))
	img := w.State().Student.Image
	require.NotNil(t, img)
	assert.Equal(t, "photo.png", img.Filename)
	assert.Equal(t, "image/png", img.ContentType)

	require.NoError(t, w.Detach())
	assert.Nil(t, w.State().Student.Image)
}

func TestWizard_SubmitWithoutImage(t *testing.T) {
	store := record.NewMemory()
	up := new(MockUploader)
	notifier := new(MockNotifier)
	notifier.On("RecordCreated", mock.Anything, mock.AnythingOfType("record.Student")).Return(nil)

	w := New(Deps{Uploader: up, Store: store, Notifier: notifier, Now: func() time.Time { return fixedNow }})
	fill(t, w)

	saved, err := w.Submit(context.Background())
	require.NoError(t, err)

	assert.Nil(t, saved.ImageURL)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Greenwood", saved.SchoolName)
	assert.Equal(t, "10", saved.ClassName)
	assert.Equal(t, "B", saved.Section)
	assert.Equal(t, "Jo Ann", saved.Name)
	assert.Equal(t, "42", saved.RollNumber)
	assert.Equal(t, "Science", saved.Department)
	assert.Equal(t, "2024", saved.Year)
	assert.Equal(t, fixedNow, saved.CreatedAt)

	up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, saved, all[0])

	assert.Equal(t, Initial(), w.State(), "wizard resets after a successful submit")
}

func TestWizard_SubmitWithImageUsesUploadedURL(t *testing.T) {
	store := record.NewMemory()
	up := new(MockUploader)
	up.On("Upload", mock.Anything, mock.MatchedBy(func(img imagehost.Image) bool {
		return string(img.Data) == string(pngBytes) && img.Filename == "jo.png"
	})).Return("https://img.example/jo.png", nil).Once()

	w := newWizard(store, up)
	fill(t, w)
	require.NoError(t, w.Attach("jo.png", pngBytes))

	saved, err := w.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, saved.ImageURL)
	assert.Equal(t, "https://img.example/jo.png", *saved.ImageURL)
	up.AssertExpectations(t)
}

func TestWizard_SubmitUploadFailureWritesNothing(t *testing.T) {
	store := record.NewMemory()
	up := new(MockUploader)
	up.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("host down"))

	w := newWizard(store, up)
	fill(t, w)
	require.NoError(t, w.Attach("jo.png", pngBytes))
	before := w.State()

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrUploadFailed)

	all, _ := store.ListAll(context.Background())
	assert.Empty(t, all)
	assert.Equal(t, before, w.State(), "state kept for retry")
}

func TestWizard_SubmitStoreFailureKeepsState(t *testing.T) {
	storeErr := errors.New("db unavailable")
	w := newWizard(failingStore{err: storeErr}, nil)
	fill(t, w)
	before := w.State()

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, before, w.State())
	assert.False(t, w.Submitting())
}

func TestWizard_SubmitGuards(t *testing.T) {
	w := newWizard(record.NewMemory(), nil)
	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotStudentStep)

	fill(t, w)
	require.NoError(t, w.Edit(FieldYear, ""))
	_, err = w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestWizard_NotifierFailureDoesNotFailSubmit(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("RecordCreated", mock.Anything, mock.Anything).Return(errors.New("queue down"))

	w := New(Deps{Store: record.NewMemory(), Notifier: notifier})
	fill(t, w)
	_, err := w.Submit(context.Background())
	assert.NoError(t, err)
}

// blockingUploader holds the upload open until release is closed.
type blockingUploader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingUploader) Upload(ctx context.Context, img imagehost.Image) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "https://img.example/x.png", nil
}

func TestWizard_ConcurrentSubmitIsRejected(t *testing.T) {
	up := &blockingUploader{started: make(chan struct{}), release: make(chan struct{})}
	store := record.NewMemory()
	w := newWizard(store, up)
	fill(t, w)
	require.NoError(t, w.Attach("x.png", pngBytes))

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	<-up.started

	assert.True(t, w.Submitting())
	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, w.Edit(FieldName, "Other"), ErrBusy)
	assert.ErrorIs(t, w.Back(), ErrBusy)

	close(up.release)
	require.NoError(t, <-done)

	all, _ := store.ListAll(context.Background())
	assert.Len(t, all, 1)
}
