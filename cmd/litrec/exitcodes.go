package main

import (
	"errors"

	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/merge"
	"github.com/litcat/litrec/internal/pubdate"
	"github.com/litcat/litrec/internal/storage"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing config, actor, provider)
	ExitDataError   = 3 // Data error (malformed input, merge refused, not found)
	ExitFetchError  = 4 // Provider feed could not be fetched
)

// exitCodeFor maps an error onto the exit code documented above.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case conflict.IsFetchFailure(err):
		return ExitFetchError
	case errors.Is(err, config.ErrInvalid), errors.Is(err, storage.ErrMissingActor):
		return ExitConfigError
	case merge.IsRefusal(err), errors.Is(err, pubdate.ErrUnparseable), errors.Is(err, storage.ErrNotFound):
		return ExitDataError
	}
	if _, ok := conflict.KindOf(err); ok {
		return ExitDataError
	}
	return ExitError
}
