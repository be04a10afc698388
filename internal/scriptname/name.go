// Package scriptname validates the names under which scripts are stored and
// addressed. Every path derived from user input flows through Valid before
// it is ever joined onto the scripts directory.
package scriptname

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalid is joined onto every error Check returns so callers can match
// with errors.Is regardless of the specific reason. Valid's own errors do
// not carry it.
var ErrInvalid = errors.New("invalid script name")

// Valid reports whether name is safe to join onto the scripts directory and
// ends in the guest-language extension. ext must include the leading dot
// (e.g. ".py").
func Valid(name, ext string) error {
	if name == "" {
		return errors.New("script name: empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.New("script name: path separator not allowed")
	}
	if name == "." || name == ".." {
		return errors.New("script name: parent directory segment")
	}
	if clean := filepath.Clean(name); clean != name {
		return errors.New("script name: not in canonical form")
	}
	if !strings.HasSuffix(name, ext) {
		return errors.New("script name: must end in " + ext)
	}
	if len(name) == len(ext) {
		return errors.New("script name: empty base name")
	}
	return nil
}

// Check wraps Valid's error, if any, with ErrInvalid for errors.Is matching
// at the HTTP boundary.
func Check(name, ext string) error {
	if err := Valid(name, ext); err != nil {
		return errors.Join(ErrInvalid, err)
	}
	return nil
}

// Path joins dir and name. Callers must validate name with Check first —
// Path itself performs no safety check.
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}
