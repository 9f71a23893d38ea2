package media

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Info describes an audio file before upload.
type Info struct {
	Path string
	Size int64
	MIME string
}

// Inspect stats path and sniffs its content type from magic bytes.
// Missing files map to not_found, unreadable ones to permission_denied,
// and content that is not audio or video to invalid_response.
func Inspect(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, statError(err)
	}
	if st.IsDir() {
		return Info{}, types.NewError(types.KindNotFound, "inspect", path+" is a directory")
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Info{}, statError(err)
	}
	if !isAudio(mt) {
		return Info{}, types.NewError(types.KindInvalidResponse, "inspect", "not an audio file: "+mt.String())
	}
	return Info{Path: path, Size: st.Size(), MIME: mt.String()}, nil
}

func statError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return types.Wrap(types.KindNotFound, "inspect", err)
	case errors.Is(err, fs.ErrPermission):
		return types.Wrap(types.KindPermissionDenied, "inspect", err)
	default:
		return types.Wrap(types.KindMedia, "inspect", err)
	}
}

// isAudio walks the MIME hierarchy; containers like mp4 and ogg are
// accepted since recorders commonly produce them.
func isAudio(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/") || s == "application/ogg" {
			return true
		}
	}
	return false
}
