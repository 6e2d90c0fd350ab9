/*
scenarios.go - Demo scenario and fixture loaders

PURPOSE:

	Populates the store with realistic data for demos and manual testing.
	Presets live in factory/scenarios.go; this file only exposes them.

AVAILABLE SCENARIOS:

	single-member:      Member alone, 30 paid of a 50 due (20 remaining)
	guest-discount:     Member with two guests, 20% off: expected 280
	regional-subgroups: Two sub-groups, two activities, partial payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "guest-discount"}

	POST /api/fixtures
	<fixture document, see factory/fixture.go>

NOTE:

	Loading never resets the database. The ledger is append-only, so
	every load adds a fresh, independent set of entities. A load that
	fails part-way answers with the error status and keeps what was
	created before the failing entry.

SEE ALSO:
  - factory/scenarios.go: Preset fixtures
  - factory/fixture.go: Fixture format
*/
package api

import (
	"net/http"

	"github.com/warp/dues-engine/factory"
	"github.com/warp/dues-engine/generic"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	presets := factory.Scenarios()
	dtos := make([]ScenarioDTO, len(presets))
	for i, s := range presets {
		dtos[i] = toScenarioDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := factory.LookupScenario(current); ok {
		writeJSON(w, http.StatusOK, toScenarioDTO(s))
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, ok := factory.LookupScenario(req.ScenarioID)
	if !ok {
		h.writeDomainError(w, r, "Unknown scenario", &generic.NotFoundError{Kind: "scenario", ID: req.ScenarioID})
		return
	}

	loaded, err := h.Fixtures.Load(r.Context(), h.Service, s.Fixture)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	h.logger.Info("scenario loaded",
		"scenario", s.ID,
		"activities", len(loaded.Activities),
		"registrations", len(loaded.Registrations),
	)
	writeJSON(w, http.StatusCreated, toLoadedDTO(s.ID, loaded))
}

// LoadFixture applies a caller-supplied fixture document.
func (h *Handler) LoadFixture(w http.ResponseWriter, r *http.Request) {
	body, err := readAll(w, r)
	if err != nil {
		h.badRequest(w, "Invalid request body", err)
		return
	}

	loaded, err := h.Fixtures.Load(r.Context(), h.Service, string(body))
	if err != nil {
		h.writeDomainError(w, r, "Failed to load fixture", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoadedDTO("", loaded))
}
