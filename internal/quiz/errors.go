package quiz

import "github.com/victornm/tquiz/internal/errors"

var (
	ErrInvalidEmail = errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("Please enter a valid email address."))

	ErrFetchFailed = errors.New(errors.CodeUnavailable,
		errors.WithMessagef("Unable to load quiz questions. Please try again."))

	ErrAlreadyStarted = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("quiz has already been started"))

	ErrNoQuestions = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("quiz cannot start without questions"))

	ErrBusy = errors.New(errors.CodeAborted,
		errors.WithMessagef("quiz questions are already loading"))

	ErrDiscarded = errors.New(errors.CodeAborted,
		errors.WithMessagef("session was reset while questions were loading"))

	ErrClosed = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session is closed"))

	ErrNotCompleted = errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("quiz is not completed yet"))
)
