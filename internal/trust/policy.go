// Package trust implements the policy side of memory sharing: resolving an
// accessor's effective trust from an owner's configuration and rendering a
// memory at the disclosure tier that trust earns. Everything here is pure;
// stores and escalation state live in the service layer.
package trust

import (
	"memory-service/internal/models"
)

// Disclosure tier thresholds, strictly descending. A trust value equal to a
// threshold earns that tier.
const (
	FullAccessTrust    = 1.0
	PartialAccessTrust = 0.75
	SummaryOnlyTrust   = 0.5
	MetadataOnlyTrust  = 0.25
	ExistenceOnlyTrust = 0.0
)

// ExistenceNotice is the only content disclosed at the lowest tier.
const ExistenceNotice = "a memory exists about this topic"

const noSummaryFallback = "(no summary available)"

// ResolveAccessorTrust returns the effective trust the owner's configuration
// grants the accessor: the per-user override when present, else the friend
// default, else the public default when public sharing is enabled, else zero.
func ResolveAccessorTrust(config *models.OwnerTrustConfig, accessorID string, isFriend bool) float64 {
	if config == nil {
		return 0
	}
	if v, ok := config.PerUserTrust[accessorID]; ok {
		return clamp01(v)
	}
	if isFriend {
		return clamp01(config.DefaultFriendTrust)
	}
	if config.PublicEnabled {
		return clamp01(config.DefaultPublicTrust)
	}
	return 0
}

func IsTrustSufficient(required, accessorTrust float64) bool {
	return accessorTrust >= required
}

// TierForTrust maps a trust value straight to its disclosure tier. It carries
// none of the self-access or owner-exclusive handling of RenderForDisclosure
// and is meant for plain labeling.
func TierForTrust(trust float64) models.DisclosureLevel {
	switch {
	case trust >= FullAccessTrust:
		return models.DisclosureFull
	case trust >= PartialAccessTrust:
		return models.DisclosurePartial
	case trust >= SummaryOnlyTrust:
		return models.DisclosureSummary
	case trust >= MetadataOnlyTrust:
		return models.DisclosureMetadata
	default:
		return models.DisclosureExistence
	}
}

// RenderForDisclosure renders the memory at the tier the accessor earns.
// Self access always renders the full memory. A required trust of 1.0 marks
// owner-exclusive content: every other accessor sees existence only, whatever
// their trust. The returned memory is always a copy; the input is never
// mutated.
func RenderForDisclosure(memory *models.Memory, accessorTrust float64, isSelf bool) *models.Disclosure {
	if isSelf {
		return &models.Disclosure{Level: models.DisclosureFull, Memory: copyMemory(memory)}
	}
	if memory.RequiredTrust >= FullAccessTrust {
		return &models.Disclosure{Level: models.DisclosureExistence, Notice: ExistenceNotice}
	}

	switch TierForTrust(accessorTrust) {
	case models.DisclosureFull:
		return &models.Disclosure{Level: models.DisclosureFull, Memory: copyMemory(memory)}
	case models.DisclosurePartial:
		return &models.Disclosure{Level: models.DisclosurePartial, Memory: RedactSensitiveFields(memory)}
	case models.DisclosureSummary:
		summary := memory.Summary
		if summary == "" {
			summary = noSummaryFallback
		}
		return &models.Disclosure{
			Level: models.DisclosureSummary,
			Memory: &models.Memory{
				ID:      memory.ID,
				OwnerID: memory.OwnerID,
				Kind:    memory.Kind,
				Title:   memory.Title,
				Summary: summary,
			},
		}
	case models.DisclosureMetadata:
		return &models.Disclosure{
			Level: models.DisclosureMetadata,
			Memory: &models.Memory{
				ID:         memory.ID,
				OwnerID:    memory.OwnerID,
				Kind:       memory.Kind,
				MemoryType: memory.MemoryType,
				Tags:       append([]string(nil), memory.Tags...),
			},
		}
	default:
		return &models.Disclosure{Level: models.DisclosureExistence, Notice: ExistenceNotice}
	}
}

// RedactSensitiveFields returns a copy of the memory with geolocation,
// participant and environment context, and raw references cleared. The input
// is never mutated.
func RedactSensitiveFields(memory *models.Memory) *models.Memory {
	out := copyMemory(memory)
	out.Location = nil
	out.Participants = nil
	out.Environment = nil
	out.References = nil
	return out
}

func copyMemory(m *models.Memory) *models.Memory {
	out := *m
	out.Tags = append([]string(nil), m.Tags...)
	out.References = append([]string(nil), m.References...)
	out.Participants = append([]string(nil), m.Participants...)
	out.SpaceIDs = append([]string(nil), m.SpaceIDs...)
	out.GroupIDs = append([]string(nil), m.GroupIDs...)
	out.Embedding = append([]float64(nil), m.Embedding...)
	if m.Location != nil {
		loc := *m.Location
		out.Location = &loc
	}
	if m.Environment != nil {
		env := make(map[string]string, len(m.Environment))
		for k, v := range m.Environment {
			env[k] = v
		}
		out.Environment = env
	}
	return &out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
