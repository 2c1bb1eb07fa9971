package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"studentportal/internal/metrics"
	"studentportal/internal/wizard"
)

type studentView struct {
	Name       string     `json:"name"`
	RollNumber string     `json:"rollNumber"`
	Department string     `json:"department"`
	Year       string     `json:"year"`
	Image      *imageView `json:"image"`
}

type imageView struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type wizardView struct {
	ID         string      `json:"id"`
	Step       int         `json:"step"`
	StepName   string      `json:"stepName"`
	Fields     []string    `json:"fields"`
	CanAdvance bool        `json:"canAdvance"`
	Submitting bool        `json:"submitting"`
	SchoolName string      `json:"schoolName"`
	ClassName  string      `json:"className"`
	Section    string      `json:"section"`
	Student    studentView `json:"student"`
}

func viewWizard(id string, w *wizard.Wizard) wizardView {
	st := w.State()
	v := wizardView{
		ID:         id,
		Step:       int(st.Step),
		StepName:   st.Step.String(),
		Fields:     st.Step.Fields(),
		CanAdvance: st.Complete(st.Step),
		Submitting: w.Submitting(),
		SchoolName: st.SchoolName,
		ClassName:  st.ClassName,
		Section:    st.Section,
		Student: studentView{
			Name:       st.Student.Name,
			RollNumber: st.Student.RollNumber,
			Department: st.Student.Department,
			Year:       st.Student.Year,
		},
	}
	if img := st.Student.Image; img != nil {
		v.Student.Image = &imageView{Filename: img.Filename, ContentType: img.ContentType, Size: len(img.Data)}
	}
	return v
}

// CreateWizard starts a new submission on the first step.
func (h *Handler) CreateWizard(c *gin.Context) {
	w := wizard.New(wizard.Deps{
		Uploader:      h.opts.Uploader,
		Store:         h.opts.Store,
		Notifier:      h.opts.Notifier,
		MaxImageBytes: h.opts.MaxImageBytes,
	})
	id := h.wizards.Create(w)
	h.updateSessionGauges()
	c.JSON(http.StatusCreated, viewWizard(id, w))
}

func (h *Handler) wizard(c *gin.Context) (*wizard.Wizard, bool) {
	w, ok := h.wizards.Get(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "wizard session not found")
		return nil, false
	}
	return w, true
}

// GetWizard returns the current state.
func (h *Handler) GetWizard(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewWizard(c.Param("id"), w))
}

// DeleteWizard discards the session and everything entered so far.
func (h *Handler) DeleteWizard(c *gin.Context) {
	if !h.wizards.Delete(c.Param("id")) {
		abortError(c, http.StatusNotFound, "wizard session not found")
		return
	}
	h.updateSessionGauges()
	c.Status(http.StatusNoContent)
}

type editRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// EditWizard sets one field of the current step.
func (h *Handler) EditWizard(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := w.Edit(req.Field, req.Value); err != nil {
		wizardError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewWizard(c.Param("id"), w))
}

// NextStep advances when the current step is complete.
func (h *Handler) NextStep(c *gin.Context) {
	h.move(c, (*wizard.Wizard).Next)
}

// PrevStep goes back one step keeping all data.
func (h *Handler) PrevStep(c *gin.Context) {
	h.move(c, (*wizard.Wizard).Back)
}

func (h *Handler) move(c *gin.Context, fn func(*wizard.Wizard) error) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := fn(w); err != nil {
		wizardError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewWizard(c.Param("id"), w))
}

// AttachImage reads multipart field "image" and attaches it to the student.
func (h *Handler) AttachImage(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		abortError(c, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	var src io.Reader = file
	if h.opts.MaxImageBytes > 0 {
		// one extra byte lets Attach detect the overflow
		src = io.LimitReader(file, int64(h.opts.MaxImageBytes)+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "failed to read image")
		return
	}
	if err := w.Attach(header.Filename, data); err != nil {
		wizardError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewWizard(c.Param("id"), w))
}

// DetachImage removes the attached image.
func (h *Handler) DetachImage(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := w.Detach(); err != nil {
		wizardError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewWizard(c.Param("id"), w))
}

// Submit uploads the image, saves the record and resets the wizard.
func (h *Handler) Submit(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	saved, err := w.Submit(c.Request.Context())
	switch {
	case err == nil:
		metrics.Submissions.WithLabelValues("ok").Inc()
		c.JSON(http.StatusCreated, gin.H{"record": saved, "wizard": viewWizard(c.Param("id"), w)})
	case errors.Is(err, wizard.ErrUploadFailed):
		metrics.Submissions.WithLabelValues("upload_failed").Inc()
		abortError(c, http.StatusBadGateway, "failed to save student data: image upload failed")
	case errors.Is(err, wizard.ErrSaveFailed):
		metrics.Submissions.WithLabelValues("save_failed").Inc()
		abortError(c, http.StatusInternalServerError, "failed to save student data")
	default:
		metrics.Submissions.WithLabelValues("rejected").Inc()
		wizardError(c, err)
	}
}

func wizardError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, wizard.ErrUnknownField),
		errors.Is(err, wizard.ErrFieldNotOnStep),
		errors.Is(err, wizard.ErrEmptyImage):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, wizard.ErrNotImage):
		abortError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, wizard.ErrImageTooLarge):
		abortError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, wizard.ErrIncomplete),
		errors.Is(err, wizard.ErrFirstStep),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrNotStudentStep),
		errors.Is(err, wizard.ErrBusy):
		abortError(c, http.StatusConflict, err.Error())
	default:
		log.Printf("wizard: unexpected error: %v", err)
		abortError(c, http.StatusInternalServerError, "internal error")
	}
}
