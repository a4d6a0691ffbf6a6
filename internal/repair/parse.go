package repair

import (
	"encoding/json"
	"fmt"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
)

// ParseChapters decodes a table of contents from a model answer. A direct
// parse is tried first; repair runs only when that fails. repaired reports
// which path produced the result.
func ParseChapters(text string) (chapters []models.ChapterNode, repaired bool, err error) {
	payload, ok := validWhole(text)
	if !ok {
		payload = Extract(text)
	}
	if json.Valid([]byte(payload)) {
		chapters, err = decodeChapters(payload)
		if err != nil {
			return nil, false, errs.Wrap(err, errs.KindMalformedPayload, "the outline does not match the chapter structure")
		}
		return chapters, false, nil
	}

	fixed, err := Repair(text)
	if err != nil {
		return nil, true, err
	}
	chapters, err = decodeChapters(fixed)
	if err != nil {
		return nil, true, errs.Wrap(err, errs.KindTruncatedPayload,
			"the repaired outline is incomplete; try requesting fewer chapters or a shorter outline")
	}
	return chapters, true, nil
}

func decodeChapters(payload string) ([]models.ChapterNode, error) {
	var generic any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, err
	}
	if err := validateChapters(generic); err != nil {
		return nil, fmt.Errorf("validate outline: %w", err)
	}

	chapters := make([]models.ChapterNode, 0)
	if err := json.Unmarshal([]byte(payload), &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}
