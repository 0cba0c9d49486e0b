package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/adaapt/internal/api"
)

func loaded(t *testing.T) *Workflow {
	t.Helper()
	w := New()
	require.Equal(t, PhaseLoading, w.Phase())
	w.DomainsLoaded([]api.Domain{{ID: "d1", Name: "sales"}, {ID: "d2", Name: "hr"}}, false)
	require.Equal(t, PhaseSelecting, w.Phase())
	return w
}

func TestSubmitEnabledOnlyWithDomainAndFile(t *testing.T) {
	w := loaded(t)
	assert.False(t, w.CanSubmit())

	require.NoError(t, w.SelectDomain("d1"))
	assert.False(t, w.CanSubmit())

	require.NoError(t, w.AttachFile(File{Path: "/tmp/report.pdf"}))
	assert.True(t, w.CanSubmit())
	assert.Equal(t, PhaseFileAttached, w.Phase())

	require.NoError(t, w.SelectDomain(""))
	assert.False(t, w.CanSubmit())
	require.NoError(t, w.SelectDomain("d2"))
	assert.True(t, w.CanSubmit())

	w.DetachFile()
	assert.False(t, w.CanSubmit())
	assert.Equal(t, PhaseSelecting, w.Phase())
}

func TestSubmitWhileDisabledIsNoop(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.SelectDomain("d1"))

	_, err := w.Submit()
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, PhaseSelecting, w.Phase())
	assert.Equal(t, MsgMissingFields, w.Message())
	assert.Equal(t, "d1", w.DomainID())

	require.NoError(t, w.AttachFile(File{Path: "a.txt"}))
	assert.Empty(t, w.Message(), "choosing a file clears the message")
}

func TestSingleUploadInFlight(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.SelectDomain("d1"))
	require.NoError(t, w.AttachFile(File{Path: "/data/q3.csv"}))

	req, err := w.Submit()
	require.NoError(t, err)
	assert.Equal(t, Request{DomainID: "d1", File: File{Path: "/data/q3.csv"}}, req)
	assert.Equal(t, PhaseUploading, w.Phase())
	assert.False(t, w.CanSubmit())

	_, err = w.Submit()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, w.SelectDomain("d2"), ErrNotReady)
	assert.ErrorIs(t, w.AttachFile(File{Path: "other"}), ErrNotReady)
	assert.Equal(t, "d1", w.DomainID())
}

func TestFailureKeepsFormForRetry(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.SelectDomain("d2"))
	require.NoError(t, w.AttachFile(File{Path: "policy.docx"}))
	_, err := w.Submit()
	require.NoError(t, err)

	w.Finish(&api.Error{Status: 500})
	assert.Equal(t, PhaseFailed, w.Phase())
	assert.Equal(t, MsgFailed, w.Message())
	assert.False(t, w.Done())
	assert.Equal(t, "d2", w.DomainID())
	f, ok := w.File()
	require.True(t, ok)
	assert.Equal(t, "policy.docx", f.Name())

	assert.True(t, w.CanSubmit())
	_, err = w.Submit()
	require.NoError(t, err)
	w.Finish(nil)
	assert.Equal(t, PhaseSucceeded, w.Phase())
	assert.Equal(t, MsgSucceeded, w.Message())
	assert.True(t, w.Done())
}

func TestFailureSurfacesServerDetail(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.SelectDomain("d1"))
	require.NoError(t, w.AttachFile(File{Path: "x.bin"}))
	_, _ = w.Submit()
	w.Finish(&api.Error{Status: 415, Detail: "Unsupported file type"})
	assert.Equal(t, "Unsupported file type", w.Message())
}

func TestSelectionRestrictedToAccessibleDomains(t *testing.T) {
	w := New()
	assert.ErrorIs(t, w.SelectDomain("d1"), ErrLoading)
	require.NoError(t, w.AttachFile(File{Path: "early.txt"}))
	assert.Equal(t, PhaseLoading, w.Phase())

	w.DomainsLoaded([]api.Domain{{ID: "d1", Name: "sales"}}, true)
	assert.True(t, w.Degraded())
	assert.ErrorIs(t, w.SelectDomain("nope"), ErrUnknownDomain)
	require.NoError(t, w.SelectDomain("d1"))
	assert.True(t, w.CanSubmit())
}

func TestEmptyListingShowsMessage(t *testing.T) {
	w := New()
	w.DomainsLoaded(nil, false)
	assert.Equal(t, MsgNoDomains, w.Message())
	assert.Empty(t, w.Domains())
}

type recordingUploader struct {
	got     api.UploadRequest
	content string
	err     error
}

func (r *recordingUploader) Upload(_ context.Context, in api.UploadRequest) error {
	r.got = in
	b, _ := io.ReadAll(in.Content)
	r.content = string(b)
	return r.err
}

func TestSendStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello"), 0o644))
	up := &recordingUploader{}

	err := Send(context.Background(), up, Request{DomainID: "d1", File: File{Path: path}})
	require.NoError(t, err)
	assert.Equal(t, "d1", up.got.DomainID)
	assert.Equal(t, "notes.md", up.got.FileName)
	assert.Equal(t, "# hello", up.content)
	assert.Empty(t, up.got.Title)

	up.err = errors.New("boom")
	assert.EqualError(t, Send(context.Background(), up, Request{DomainID: "d1", File: File{Path: path}}), "boom")

	err = Send(context.Background(), up, Request{DomainID: "d1", File: File{Path: filepath.Join(t.TempDir(), "missing")}})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
