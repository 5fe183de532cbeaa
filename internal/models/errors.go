package models

import "errors"

// Input errors are fatal to the call, never to the process.
var (
	// ErrEmptyCorpus is returned when a run is started with no documents.
	ErrEmptyCorpus = errors.New("empty document list")
	// ErrTooFewDocuments is returned when a run has fewer than 2 documents.
	ErrTooFewDocuments = errors.New("at least 2 documents required for clustering")
)

// Mutation and collaborator errors. These leave the theme set unchanged.
var (
	// ErrThemeNotFound is returned when a mutation target cannot be resolved.
	ErrThemeNotFound = errors.New("theme not found")
	// ErrConcurrentModification is returned when a second writer races a
	// mutation on the same theme set.
	ErrConcurrentModification = errors.New("concurrent modification of theme set")
	// ErrInvalidProposal is returned for malformed add/modify payloads.
	ErrInvalidProposal = errors.New("invalid theme proposal")
	// ErrInvalidCandidateTheme is returned when the theme proposer produces
	// output the engine cannot accept.
	ErrInvalidCandidateTheme = errors.New("invalid candidate theme")
	// ErrNoMatchingDocuments is returned when a mutation's assignment pass
	// claims no documents, so no viable theme can be produced.
	ErrNoMatchingDocuments = errors.New("no documents matched the proposed theme")
)
