package promotion

import (
	"errors"
	"fmt"
	"net/http"

	"promoter/internal/store"
)

var (
	// ErrMissingParameter indicates a mandatory request parameter was empty
	ErrMissingParameter = errors.New("missing mandatory parameter")

	// ErrInvalidParameter indicates a request parameter failed validation
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBuildNotFound indicates no staged build matches the request
	ErrBuildNotFound = errors.New("build not found")

	// ErrAmbiguousBuild indicates several staged builds match and a start
	// time is needed to choose one
	ErrAmbiguousBuild = errors.New("ambiguous build")

	// ErrAlreadyPromoted indicates the release build already exists
	ErrAlreadyPromoted = errors.New("build already promoted")

	// ErrUnsupportedSnapshot indicates the snapshot expression is not one of
	// the supported patterns
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot expression")
)

// RequestError rejects a promotion before anything has been written. It is
// never followed by a rollback.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string { return e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(err error) error {
	return &RequestError{Status: http.StatusBadRequest, Err: err}
}

func conflict(err error) error {
	return &RequestError{Status: http.StatusConflict, Err: err}
}

// PathMappingError reports a release path that came out identical to the
// staged path it was computed from. Writing there would overwrite the staged
// file.
type PathMappingError struct {
	Staged  store.RepoPath
	Version string
}

func (e *PathMappingError) Error() string {
	return fmt.Sprintf("release path of %s for version %q is unchanged from the staged path", e.Staged, e.Version)
}

// MetadataRewriteError reports a descriptor that could not be read, rewritten
// or deployed
type MetadataRewriteError struct {
	Path store.RepoPath
	Err  error
}

func (e *MetadataRewriteError) Error() string {
	return fmt.Sprintf("rewrite descriptor %s: %v", e.Path, e.Err)
}

func (e *MetadataRewriteError) Unwrap() error { return e.Err }

// ParityError reports that the number of release artifacts created differs
// from the number of staged artifacts
type ParityError struct {
	Created int
	Staged  int
}

func (e *ParityError) Error() string {
	return fmt.Sprintf("created %d release artifacts for %d staged artifacts", e.Created, e.Staged)
}
