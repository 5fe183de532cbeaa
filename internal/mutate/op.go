package mutate

import (
	"fmt"

	"github.com/hyperjump/matome/internal/llm"
)

// Kind enumerates the mutation operations. Op is a tagged union over these
// variants; the mutator has one handler per variant.
type Kind int

const (
	// KindAdd adds a user-directed theme clustered over unassigned documents.
	KindAdd Kind = iota
	// KindRemove deletes a theme by resolved name.
	KindRemove
	// KindModify replaces a theme's definition, keeping its documents unless
	// re-clustering is requested.
	KindModify
	// KindCreateSubTheme splits a parent theme into 3-5 sub-themes clustered
	// over the parent's documents only.
	KindCreateSubTheme
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return llm.OpAddTheme
	case KindRemove:
		return llm.OpRemoveTheme
	case KindModify:
		return llm.OpModifyTheme
	case KindCreateSubTheme:
		return llm.OpCreateSubTheme
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a wire operation name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case llm.OpAddTheme:
		return KindAdd, nil
	case llm.OpRemoveTheme:
		return KindRemove, nil
	case llm.OpModifyTheme:
		return KindModify, nil
	case llm.OpCreateSubTheme:
		return KindCreateSubTheme, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// Op describes one mutation of a theme set.
type Op struct {
	Kind Kind
	// Target names the theme the operation applies to. Not used by KindAdd.
	Target string
	// Request is the user's natural-language request, forwarded to the
	// proposer so new definitions reflect what was asked for.
	Request string
	// Recluster makes KindModify re-run assignment for the revised
	// definition instead of keeping the current documents.
	Recluster bool
}
