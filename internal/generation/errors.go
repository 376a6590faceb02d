package generation

import "errors"

var (
	// ErrGenerationTerminal is returned when another run already failed the generation.
	ErrGenerationTerminal = errors.New("generation is no longer running")
	// ErrMasterResumeNotFound is returned when the user has not saved a master résumé.
	ErrMasterResumeNotFound = errors.New("master resume not found")
	// ErrMasterResumeChanged retires an unfinished generation whose master résumé was edited.
	ErrMasterResumeChanged = errors.New("master resume changed since the generation started")
	// ErrGenerationIncomplete is returned when finalization finds no optimized résumé.
	ErrGenerationIncomplete = errors.New("generation has not reached the optimized stage")
)
