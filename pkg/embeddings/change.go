package embeddings

import "fmt"

// ChangeDecision is the verdict of DetectConfigChange.
type ChangeDecision struct {
	RequiresReindex bool   `json:"requires_reindex"`
	Reason          string `json:"reason"`
}

// DetectConfigChange decides whether moving from previous to next invalidates
// the vectors already stored. previous is nil on first-time setup.
// indexedDimension is the width of vectors already persisted in the store, or
// nil when unknown or the store is empty.
//
// Rules are evaluated in order and the first match wins. Embeddings from
// different providers or models are never comparable, even at equal width.
func DetectConfigChange(previous *ProviderConfig, next ProviderConfig, indexedDimension *int) ChangeDecision {
	nextDim := next.EffectiveDimension()

	if previous == nil {
		if indexedDimension != nil && *indexedDimension != nextDim {
			return ChangeDecision{
				RequiresReindex: true,
				Reason: fmt.Sprintf("indexed dimension %d does not match configured dimension %d",
					*indexedDimension, nextDim),
			}
		}
		return ChangeDecision{Reason: "initial embedding configuration"}
	}

	if previous.ProviderID != next.ProviderID {
		return ChangeDecision{
			RequiresReindex: true,
			Reason:          fmt.Sprintf("provider changed from %q to %q", previous.ProviderID, next.ProviderID),
		}
	}

	if previous.Model != next.Model {
		return ChangeDecision{
			RequiresReindex: true,
			Reason:          fmt.Sprintf("model changed from %q to %q", previous.Model, next.Model),
		}
	}

	if prevDim := previous.EffectiveDimension(); prevDim != nextDim {
		return ChangeDecision{
			RequiresReindex: true,
			Reason:          fmt.Sprintf("dimension changed from %d to %d", prevDim, nextDim),
		}
	}

	if indexedDimension != nil && *indexedDimension != nextDim {
		return ChangeDecision{
			RequiresReindex: true,
			Reason: fmt.Sprintf("indexed dimension %d differs from configured dimension %d",
				*indexedDimension, nextDim),
		}
	}

	return ChangeDecision{Reason: "embedding configuration unchanged"}
}
