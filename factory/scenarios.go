package factory

import "sort"

// =============================================================================
// SCENARIO PRESETS
// =============================================================================

// Scenario is a named preset fixture.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Fixture     string
}

// SingleMemberJSON: due 50, no discount, member alone, 30 paid (20 remaining).
const SingleMemberJSON = `{
  "constants": {"min": "0", "max": "500"},
  "members": [{"ref": "alice", "name": "Alice Martin", "number": "A-001"}],
  "activities": [{
    "ref": "workshop", "in_days": 7, "description": "Spring workshop",
    "priority": 3, "region": "centre", "due": "50"
  }],
  "registrations": [{"ref": "alice-workshop", "member": "alice", "activity": "workshop"}],
  "payments": [{"registration": "alice-workshop", "amount": "30"}]
}`

// GuestDiscountJSON: due 100, 20% off from 2 guests. M brings G1 and G2:
// expected 80 + 100 + 100 = 280.
const GuestDiscountJSON = `{
  "constants": {"min": "0", "max": "500"},
  "persons": [
    {"ref": "g1", "name": "Guest One"},
    {"ref": "g2", "name": "Guest Two"}
  ],
  "members": [{"ref": "m", "name": "Marie Dubois", "number": "A-002"}],
  "activities": [{
    "ref": "gala", "in_days": 14, "description": "Annual gala",
    "priority": 8, "region": "centre", "due": "100",
    "discount_percent": "20", "guest_threshold": 2
  }],
  "registrations": [
    {"ref": "m-gala", "member": "m", "activity": "gala"},
    {"ref": "g1-gala", "member": "m", "activity": "gala", "guest": "g1"},
    {"ref": "g2-gala", "member": "m", "activity": "gala", "guest": "g2"}
  ]
}`

// RegionalSubGroupsJSON: two sub-groups partitioning the attendees of two
// activities, each sub-group with its own what-if discount.
const RegionalSubGroupsJSON = `{
  "constants": {"min": "0", "max": "500"},
  "persons": [
    {"ref": "g1", "name": "Guest North"},
    {"ref": "g2", "name": "Guest South"},
    {"ref": "g3", "name": "Guest South Two"}
  ],
  "members": [
    {"ref": "n1", "name": "Nadia North", "number": "N-001"},
    {"ref": "s1", "name": "Samir South", "number": "S-001"}
  ],
  "subgroups": [
    {"ref": "north", "name": "North", "region": "north",
     "discount_percent": "10", "guest_threshold": 1, "roster": ["n1", "g1"]},
    {"ref": "south", "name": "South", "region": "south",
     "discount_percent": "30", "guest_threshold": 2, "roster": ["s1", "g2", "g3"]}
  ],
  "activities": [
    {"ref": "hike", "in_days": 3, "description": "Mountain hike",
     "priority": 4, "region": "north", "due": "40"},
    {"ref": "dinner", "in_days": 10, "description": "Charity dinner",
     "priority": 9, "region": "south", "due": "120",
     "discount_percent": "25", "guest_threshold": 2}
  ],
  "registrations": [
    {"ref": "n1-hike", "member": "n1", "activity": "hike"},
    {"ref": "g1-hike", "member": "n1", "activity": "hike", "guest": "g1"},
    {"ref": "s1-dinner", "member": "s1", "activity": "dinner"},
    {"ref": "g2-dinner", "member": "s1", "activity": "dinner", "guest": "g2"},
    {"ref": "g3-dinner", "member": "s1", "activity": "dinner", "guest": "g3"}
  ],
  "payments": [
    {"registration": "n1-hike", "amount": "40"},
    {"registration": "s1-dinner", "amount": "50", "idempotency_key": "s1-dinner-deposit"},
    {"registration": "g2-dinner", "amount": "120"}
  ]
}`

var scenarios = map[string]Scenario{
	"single-member": {
		ID:          "single-member",
		Name:        "Single Member",
		Description: "Member attends alone, pays 30 of a 50 due",
		Fixture:     SingleMemberJSON,
	},
	"guest-discount": {
		ID:          "guest-discount",
		Name:        "Guest Discount",
		Description: "Member invites two guests and earns 20% off their own due",
		Fixture:     GuestDiscountJSON,
	},
	"regional-subgroups": {
		ID:          "regional-subgroups",
		Name:        "Regional Sub-groups",
		Description: "Two sub-groups across two activities with partial payments",
		Fixture:     RegionalSubGroupsJSON,
	},
}

// Scenarios lists the presets ordered by id.
func Scenarios() []Scenario {
	out := make([]Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupScenario returns the preset with the given id.
func LookupScenario(id string) (Scenario, bool) {
	s, ok := scenarios[id]
	return s, ok
}
