// Package certification holds the pipeline definition an application moves
// through. Definitions are read-only to the core: admins manage them out of
// band.
package certification

import (
	"sort"

	"certflow/pkg/domain"
)

// FormSlot is one configured form in a certification pipeline.
type FormSlot struct {
	TemplateID  domain.FormTemplateID
	Title       string
	StageNumber int
	IsRequired  bool
	FilledBy    domain.FilledBy
}

// Certification is the ordered pipeline definition for one program.
type Certification struct {
	ID        domain.CertificationID
	Name      string
	FormSlots []FormSlot
}

// DedupedSlots returns the form slots with duplicate template references
// collapsed (first occurrence wins) and the survivors ordered by stage
// number. The sort is stable so equal stage numbers keep configured order.
func (c Certification) DedupedSlots() []FormSlot {
	seen := make(map[domain.FormTemplateID]bool, len(c.FormSlots))
	out := make([]FormSlot, 0, len(c.FormSlots))
	for _, slot := range c.FormSlots {
		if seen[slot.TemplateID] {
			continue
		}
		seen[slot.TemplateID] = true
		out = append(out, slot)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StageNumber < out[j].StageNumber
	})
	return out
}

// HasAssessableForms reports whether any slot is filled by an assessor, user,
// or mapping role, which is what puts an assessment step in the pipeline.
func (c Certification) HasAssessableForms() bool {
	for _, slot := range c.FormSlots {
		switch slot.FilledBy {
		case domain.FilledByAssessor, domain.FilledByUser, domain.FilledByMapping:
			return true
		}
	}
	return false
}
