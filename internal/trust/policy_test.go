package trust

import (
	"memory-service/internal/models"
	"testing"
)

func sampleMemory() *models.Memory {
	return &models.Memory{
		OwnerID:       "owner-1",
		Kind:          models.MemoryKindMemory,
		Title:         "Trip to the coast",
		Content:       "Full account of the trip",
		Summary:       "A weekend trip",
		MemoryType:    "travel",
		Tags:          []string{"travel", "coast"},
		References:    []string{"ref-1"},
		Participants:  []string{"friend-1"},
		Location:      &models.GeoPoint{Latitude: 12.5, Longitude: 33.1},
		Environment:   map[string]string{"weather": "sunny"},
		RequiredTrust: 0.5,
	}
}

func TestResolveAccessorTrust(t *testing.T) {
	testCases := []struct {
		name     string
		config   *models.OwnerTrustConfig
		accessor string
		isFriend bool
		expected float64
	}{
		{"nil config", nil, "u1", false, 0},
		{
			"per-user override wins over friend default",
			&models.OwnerTrustConfig{
				PerUserTrust:       map[string]float64{"u1": 0.9},
				DefaultFriendTrust: 0.25,
			},
			"u1", true, 0.9,
		},
		{
			"friend default",
			&models.OwnerTrustConfig{DefaultFriendTrust: 0.25},
			"u1", true, 0.25,
		},
		{
			"public default when public enabled",
			&models.OwnerTrustConfig{PublicEnabled: true, DefaultPublicTrust: 0.1},
			"u1", false, 0.1,
		},
		{
			"zero when public disabled",
			&models.OwnerTrustConfig{PublicEnabled: false, DefaultPublicTrust: 0.1},
			"u1", false, 0,
		},
		{
			"override clamped to range",
			&models.OwnerTrustConfig{PerUserTrust: map[string]float64{"u1": 1.5}},
			"u1", false, 1.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveAccessorTrust(tc.config, tc.accessor, tc.isFriend)
			if got != tc.expected {
				t.Errorf("Expected trust %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestTierForTrust(t *testing.T) {
	testCases := []struct {
		trust    float64
		expected models.DisclosureLevel
	}{
		{1.0, models.DisclosureFull},
		{0.9, models.DisclosurePartial},
		{0.75, models.DisclosurePartial},
		{0.6, models.DisclosureSummary},
		{0.5, models.DisclosureSummary},
		{0.3, models.DisclosureMetadata},
		{0.25, models.DisclosureMetadata},
		{0.1, models.DisclosureExistence},
		{0.0, models.DisclosureExistence},
	}

	for _, tc := range testCases {
		got := TierForTrust(tc.trust)
		if got != tc.expected {
			t.Errorf("Expected tier %s for trust %v, got %s", tc.expected, tc.trust, got)
		}
	}
}

func TestRenderForDisclosureSelfAlwaysFull(t *testing.T) {
	memory := sampleMemory()
	memory.RequiredTrust = 1.0

	for _, trust := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		disclosure := RenderForDisclosure(memory, trust, true)
		if disclosure.Level != models.DisclosureFull {
			t.Errorf("Expected full access for self at trust %v, got %s", trust, disclosure.Level)
		}
		if disclosure.Memory == nil || disclosure.Memory.Content != memory.Content {
			t.Errorf("Expected full content for self at trust %v", trust)
		}
	}
}

func TestRenderForDisclosureMaxTrustResource(t *testing.T) {
	memory := sampleMemory()
	memory.RequiredTrust = 1.0

	// Even a fully trusted accessor sees existence only on an
	// owner-exclusive memory.
	disclosure := RenderForDisclosure(memory, 1.0, false)
	if disclosure.Level != models.DisclosureExistence {
		t.Errorf("Expected existence only, got %s", disclosure.Level)
	}
	if disclosure.Memory != nil {
		t.Errorf("Expected no memory content at existence tier")
	}
	if disclosure.Notice != ExistenceNotice {
		t.Errorf("Expected existence notice, got %q", disclosure.Notice)
	}
}

func TestRenderForDisclosureTiers(t *testing.T) {
	testCases := []struct {
		name          string
		trust         float64
		expectedLevel models.DisclosureLevel
		hasContent    bool
		hasLocation   bool
		hasSummary    bool
		hasTags       bool
	}{
		{"full", 1.0, models.DisclosureFull, true, true, true, true},
		{"partial strips sensitive fields", 0.75, models.DisclosurePartial, true, false, true, true},
		{"summary only", 0.5, models.DisclosureSummary, false, false, true, false},
		{"metadata only", 0.25, models.DisclosureMetadata, false, false, false, true},
		{"existence only", 0.0, models.DisclosureExistence, false, false, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			memory := sampleMemory()
			disclosure := RenderForDisclosure(memory, tc.trust, false)

			if disclosure.Level != tc.expectedLevel {
				t.Errorf("Expected level %s, got %s", tc.expectedLevel, disclosure.Level)
			}

			if tc.expectedLevel == models.DisclosureExistence {
				if disclosure.Memory != nil {
					t.Errorf("Expected nil memory at existence tier")
				}
				return
			}

			m := disclosure.Memory
			if m == nil {
				t.Fatalf("Expected rendered memory at level %s", tc.expectedLevel)
			}
			if got := m.Content != ""; got != tc.hasContent {
				t.Errorf("Expected hasContent=%v, got %v", tc.hasContent, got)
			}
			if got := m.Location != nil; got != tc.hasLocation {
				t.Errorf("Expected hasLocation=%v, got %v", tc.hasLocation, got)
			}
			if got := m.Summary != ""; got != tc.hasSummary {
				t.Errorf("Expected hasSummary=%v, got %v", tc.hasSummary, got)
			}
			if got := len(m.Tags) > 0; got != tc.hasTags {
				t.Errorf("Expected hasTags=%v, got %v", tc.hasTags, got)
			}
		})
	}
}

func TestRenderForDisclosureSummaryFallback(t *testing.T) {
	memory := sampleMemory()
	memory.Summary = ""

	disclosure := RenderForDisclosure(memory, 0.5, false)
	if disclosure.Memory.Summary != "(no summary available)" {
		t.Errorf("Expected summary fallback, got %q", disclosure.Memory.Summary)
	}
}

func TestRedactSensitiveFieldsNeverMutates(t *testing.T) {
	memory := sampleMemory()

	redacted := RedactSensitiveFields(memory)

	if redacted.Location != nil || redacted.Participants != nil ||
		redacted.Environment != nil || redacted.References != nil {
		t.Errorf("Expected sensitive fields cleared on the copy")
	}
	if redacted.Content != memory.Content || redacted.Title != memory.Title {
		t.Errorf("Expected non-sensitive fields preserved")
	}

	if memory.Location == nil || len(memory.Participants) == 0 ||
		memory.Environment == nil || len(memory.References) == 0 {
		t.Errorf("Expected the input memory to be untouched")
	}
}

func TestDisclosureOrderingNonIncreasing(t *testing.T) {
	memory := sampleMemory()
	memory.RequiredTrust = 0

	// Rough content weight per disclosure: count the populated fields.
	weight := func(d *models.Disclosure) int {
		if d.Memory == nil {
			return 0
		}
		w := 0
		if d.Memory.Content != "" {
			w += 4
		}
		if d.Memory.Location != nil {
			w += 2
		}
		if d.Memory.Summary != "" {
			w++
		}
		if len(d.Memory.Tags) > 0 {
			w++
		}
		return w
	}

	previous := weight(RenderForDisclosure(memory, 1.0, false))
	for _, trust := range []float64{0.75, 0.5, 0.25, 0.0} {
		current := weight(RenderForDisclosure(memory, trust, false))
		if current > previous {
			t.Errorf("Disclosure grew when trust dropped to %v", trust)
		}
		previous = current
	}
}
