package provider

import "bookforge-gateway/internal/models"

// outlineTokenBudget keeps table-of-contents answers compact.
const outlineTokenBudget = 4096

// Params are the sampling settings applied to one call.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Policy selects the output budget and temperature for a (provider, task)
// pair. Both adapter variants go through it, so callers never see budget
// differences depending on which variant served them.
func Policy(limits Limits, task models.TaskKind) Params {
	switch task {
	case models.TaskOutline:
		return Params{MaxTokens: limits.Clamp(outlineTokenBudget), Temperature: 0.4}
	case models.TaskChapter:
		return Params{MaxTokens: limits.Clamp(0), Temperature: 0.8}
	default:
		return Params{MaxTokens: limits.Clamp(0), Temperature: 0.7}
	}
}
