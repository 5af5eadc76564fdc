package document

import "github.com/vanderhaka/jarve-agency-sub002/internal/domain"

// transitions is the document lifecycle. archived is terminal.
var transitions = map[domain.DocumentStatus][]domain.DocumentStatus{
	domain.DocumentDraft:    {domain.DocumentSent, domain.DocumentArchived},
	domain.DocumentSent:     {domain.DocumentSigned, domain.DocumentRejected, domain.DocumentArchived},
	domain.DocumentSigned:   {domain.DocumentArchived},
	domain.DocumentRejected: {domain.DocumentArchived},
	domain.DocumentArchived: nil,
}

// CanTransition reports whether a document may move from one status to
// another.
func CanTransition(from, to domain.DocumentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from from.
func NextStatuses(from domain.DocumentStatus) []domain.DocumentStatus {
	out := make([]domain.DocumentStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}
