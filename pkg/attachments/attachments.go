package attachments

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxFiles is the maximum number of attachments accepted on a single send.
	MaxFiles = 5
	// MaxFileSize is the per-attachment size limit in bytes.
	MaxFileSize = 10 * 1024 * 1024
)

var (
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
)

// Attachment is a file payload handed to the transport alongside a send.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

func (a *Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// DataURL renders the attachment as a data URL suitable for inline transport.
func (a *Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MediaType, a.Base64())
}

func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

func (a *Attachment) String() string {
	return fmt.Sprintf("Attachment{Name: %s, MediaType: %s, Size: %d}", a.Name, a.MediaType, len(a.Data))
}

// FromFile loads a local file as an attachment, enforcing the size limit
// and deriving the media type from the file extension.
func FromFile(path string) (*Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get file info")
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, errors.Wrapf(ErrAttachmentTooLarge, "%s is %d bytes", path, fileInfo.Size())
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file content")
	}

	mediaType := getMediaTypeFromExtension(filepath.Ext(path))
	if mediaType == "" {
		return nil, errors.Errorf("unsupported attachment format: %s", filepath.Ext(path))
	}

	return &Attachment{
		Name:      fileInfo.Name(),
		MediaType: mediaType,
		Data:      content,
	}, nil
}

// ValidateSet checks the count and per-file size limits for a full set of
// attachments before it reaches the controller.
func ValidateSet(atts []*Attachment) error {
	if len(atts) > MaxFiles {
		return errors.Wrapf(ErrTooManyAttachments, "%d files, limit %d", len(atts), MaxFiles)
	}
	for _, a := range atts {
		if len(a.Data) > MaxFileSize {
			return errors.Wrapf(ErrAttachmentTooLarge, "%s is %d bytes", a.Name, len(a.Data))
		}
	}
	return nil
}

func getMediaTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md":
		return "text/plain"
	default:
		return ""
	}
}
