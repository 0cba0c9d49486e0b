// Package upload is the state machine behind the "upload a document to a
// department" workflow. Workflow does no I/O: callers feed it the directory
// listing, the user's choices and the upload outcome, and render whatever
// Phase and Message it reports. Send performs the upload itself.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/adaapt/internal/api"
)

// CloseDelay is how long a successful upload stays on screen before the
// workflow closes itself.
const CloseDelay = 500 * time.Millisecond

// User-facing messages.
const (
	MsgMissingFields = "Please select a department and a file."
	MsgSucceeded     = "File uploaded successfully!"
	MsgFailed        = "Upload failed. Please try again."
	MsgNoDomains     = "No accessible departments found"
)

var (
	// ErrNotReady is returned by Submit when a domain or file is missing or an
	// upload is already running. The workflow state is left untouched.
	ErrNotReady = errors.New("upload: not ready to submit")
	// ErrUnknownDomain is returned when selecting a domain outside the
	// accessible listing.
	ErrUnknownDomain = errors.New("upload: domain is not accessible")
	// ErrLoading is returned for edits attempted before the listing arrives.
	ErrLoading = errors.New("upload: departments are still loading")
)

// Phase is the workflow's coarse state.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseSelecting
	PhaseFileAttached
	PhaseUploading
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSelecting:
		return "selecting"
	case PhaseFileAttached:
		return "file-attached"
	case PhaseUploading:
		return "uploading"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// File is the attachment chosen by the user. Only the path is kept; the
// bytes are read when the upload is issued.
type File struct {
	Path string
	Size int64
}

// Name is the base name sent as the multipart filename.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Workflow tracks one open upload dialog.
type Workflow struct {
	phase    Phase
	domains  []api.Domain
	degraded bool
	domainID string
	file     *File
	message  string
}

// New starts a workflow in the loading phase.
func New() *Workflow {
	return &Workflow{phase: PhaseLoading}
}

// Phase reports the current phase.
func (w *Workflow) Phase() Phase { return w.phase }

// Domains returns the accessible domains offered to the user.
func (w *Workflow) Domains() []api.Domain {
	out := make([]api.Domain, len(w.domains))
	copy(out, w.domains)
	return out
}

// Degraded reports whether the offered domains are the fallback catalog.
func (w *Workflow) Degraded() bool { return w.degraded }

// DomainID is the selected target domain, or "".
func (w *Workflow) DomainID() string { return w.domainID }

// File returns the attached file, if any.
func (w *Workflow) File() (File, bool) {
	if w.file == nil {
		return File{}, false
	}
	return *w.file, true
}

// Message is the status line to display ("" when none).
func (w *Workflow) Message() string { return w.message }

// DomainsLoaded ends the loading phase with the directory listing.
func (w *Workflow) DomainsLoaded(domains []api.Domain, degraded bool) {
	w.domains = append([]api.Domain(nil), domains...)
	w.degraded = degraded
	if w.domainID != "" && !w.accessible(w.domainID) {
		w.domainID = ""
	}
	w.message = ""
	if len(w.domains) == 0 {
		w.message = MsgNoDomains
	}
	w.settle()
}

// SelectDomain chooses the target domain. An empty id clears the choice.
func (w *Workflow) SelectDomain(id string) error {
	if w.phase == PhaseLoading {
		return ErrLoading
	}
	if w.phase == PhaseUploading {
		return ErrNotReady
	}
	id = strings.TrimSpace(id)
	if id != "" && !w.accessible(id) {
		return ErrUnknownDomain
	}
	w.domainID = id
	w.settle()
	return nil
}

// AttachFile sets the file to upload and clears any status message.
func (w *Workflow) AttachFile(f File) error {
	if w.phase == PhaseUploading {
		return ErrNotReady
	}
	if strings.TrimSpace(f.Path) == "" {
		return errors.New("upload: file path is required")
	}
	w.file = &f
	w.message = ""
	if w.phase != PhaseLoading {
		w.settle()
	}
	return nil
}

// DetachFile removes the attachment.
func (w *Workflow) DetachFile() {
	if w.phase == PhaseUploading {
		return
	}
	w.file = nil
	if w.phase != PhaseLoading {
		w.settle()
	}
}

// CanSubmit reports whether the submit control should be enabled.
func (w *Workflow) CanSubmit() bool {
	return w.phase != PhaseLoading &&
		w.phase != PhaseUploading &&
		w.phase != PhaseSucceeded &&
		w.domainID != "" && w.file != nil
}

// Submit moves into the uploading phase and returns the request to send.
// When the workflow is not ready it returns ErrNotReady; if the only thing
// missing is a field, the missing-fields message is shown.
func (w *Workflow) Submit() (Request, error) {
	if !w.CanSubmit() {
		if w.phase != PhaseUploading && w.phase != PhaseLoading && (w.domainID == "" || w.file == nil) {
			w.message = MsgMissingFields
		}
		return Request{}, ErrNotReady
	}
	w.phase = PhaseUploading
	w.message = ""
	return Request{DomainID: w.domainID, File: *w.file}, nil
}

// Finish records the outcome of the in-flight upload. On failure every
// field is kept so the user can resubmit unchanged.
func (w *Workflow) Finish(err error) {
	if w.phase != PhaseUploading {
		return
	}
	if err != nil {
		w.phase = PhaseFailed
		w.message = api.Describe(err, MsgFailed)
		return
	}
	w.phase = PhaseSucceeded
	w.message = MsgSucceeded
}

// Done reports whether the workflow should close (after CloseDelay).
func (w *Workflow) Done() bool { return w.phase == PhaseSucceeded }

// Request is one upload ready to be sent.
type Request struct {
	DomainID string
	File     File
}

// Uploader sends a multipart upload.
type Uploader interface {
	Upload(ctx context.Context, in api.UploadRequest) error
}

// Send opens the request's file and streams it to u. Title, author and
// language are left empty.
func Send(ctx context.Context, u Uploader, req Request) error {
	f, err := os.Open(req.File.Path)
	if err != nil {
		return fmt.Errorf("upload: open %s: %w", req.File.Path, err)
	}
	defer f.Close()
	return u.Upload(ctx, api.UploadRequest{
		DomainID: req.DomainID,
		FileName: req.File.Name(),
		Content:  f,
	})
}

func (w *Workflow) accessible(id string) bool {
	for _, d := range w.domains {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (w *Workflow) settle() {
	switch {
	case w.phase == PhaseUploading || w.phase == PhaseSucceeded:
		return
	case w.domainID != "" && w.file != nil:
		w.phase = PhaseFileAttached
	default:
		w.phase = PhaseSelecting
	}
}
