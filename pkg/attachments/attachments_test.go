package attachments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0644))

	att, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, "note.png", att.Name)
	require.Equal(t, "image/png", att.MediaType)
	require.True(t, att.IsImage())
	require.Equal(t, []byte("not really a png"), att.Data)
}

func TestFromFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xyz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := FromFile(path)
	require.Error(t, err)
}

func TestDataURL(t *testing.T) {
	att := &Attachment{Name: "a.txt", MediaType: "text/plain", Data: []byte("hi")}
	require.Equal(t, "data:text/plain;base64,aGk=", att.DataURL())
	require.False(t, att.IsImage())
}

func TestValidateSetEnforcesFileCount(t *testing.T) {
	atts := make([]*Attachment, 6)
	for i := range atts {
		atts[i] = &Attachment{Name: "f", MediaType: "text/plain", Data: []byte("x")}
	}

	require.ErrorIs(t, ValidateSet(atts), ErrTooManyAttachments)
	require.NoError(t, ValidateSet(atts[:5]))
}

func TestValidateSetEnforcesFileSize(t *testing.T) {
	big := &Attachment{Name: "big", MediaType: "text/plain", Data: make([]byte, MaxFileSize+1)}
	require.ErrorIs(t, ValidateSet([]*Attachment{big}), ErrAttachmentTooLarge)

	ok := &Attachment{Name: "ok", MediaType: "text/plain", Data: make([]byte, 16)}
	require.NoError(t, ValidateSet([]*Attachment{ok}))
}
