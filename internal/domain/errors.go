package domain

import "errors"

var (
	ErrNoFiles             = errors.New("no files uploaded")
	ErrTooManyFiles        = errors.New("too many files")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidPrompt       = errors.New("invalid prompt")
	ErrNoURLs              = errors.New("no image urls provided")
	ErrProviderFailure     = errors.New("provider failure")
)
