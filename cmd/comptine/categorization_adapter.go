package main

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/comptine/internal/domain/categorization"
	importservice "github.com/FACorreiaa/comptine/internal/domain/import/service"
	"github.com/FACorreiaa/comptine/internal/domain/ledger"
)

// categorizationAdapter adapts categorization.Service to the importer's
// Categorizer: rules first, then the best history suggestion above minScore.
type categorizationAdapter struct {
	svc      *categorization.Service
	minScore int
}

// newCategorizationAdapter creates a new adapter
func newCategorizationAdapter(svc *categorization.Service, minScore int) importservice.Categorizer {
	return &categorizationAdapter{svc: svc, minScore: minScore}
}

// Categorize implements importservice.Categorizer
func (a *categorizationAdapter) Categorize(snap *ledger.Snapshot, description string) (uuid.UUID, bool) {
	if id, ok := a.svc.Categorize(snap, description); ok {
		return id, true
	}
	for _, s := range a.svc.SuggestDescription(snap, description, 1) {
		if s.Score >= a.minScore {
			return s.CategoryID, true
		}
	}
	return uuid.Nil, false
}
