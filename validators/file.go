package validators

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileNameEmpty       = errors.New("no file name provided")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrFileEmpty           = errors.New("file is empty")
	ErrPinInvalid          = errors.New("pin must be exactly 4 digits")
)

const maxFileNameSize = 255

var pinRegex = regexp.MustCompile(`^\d{4}$`)

// UploadValidator checks an upload request before a storage URL is issued
// for it. allowed may be empty to accept every type mimetype knows about.
func UploadValidator(name, contentType string, size, maxSize int64, allowed []string) (*mimetype.MIME, error) {
	if err := FileNameValidator(name); err != nil {
		return nil, err
	}

	if size <= 0 {
		return nil, ErrFileEmpty
	}

	if maxSize > 0 && size > maxSize {
		return nil, ErrFileTooLarge
	}

	ct, _, _ := strings.Cut(contentType, ";")
	mime := mimetype.Lookup(strings.TrimSpace(strings.ToLower(ct)))
	if mime == nil {
		return nil, ErrFileTypeUnsupported
	}

	if len(allowed) > 0 && !slices.ContainsFunc(allowed, func(t string) bool { return mime.Is(t) }) {
		return nil, ErrFileTypeUnsupported
	}

	return mime, nil
}

func FileNameValidator(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrFileNameEmpty
	}

	if len(name) > maxFileNameSize {
		return ErrFileNameTooLong
	}

	return nil
}

// PinValidator accepts exactly four ASCII digits
func PinValidator(pin string) error {
	if !pinRegex.MatchString(pin) {
		return ErrPinInvalid
	}

	return nil
}
