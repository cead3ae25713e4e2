// Package modules is the static catalog of testable compliance modules.
package modules

// ID identifies a compliance module. The set is closed: every valid ID is
// declared below and has a fixed position in the catalog.
type ID string

const (
	DocumentGeneration ID = "document-generation"
	ResponseAnalysis   ID = "response-analysis"
	DecisionEngine     ID = "decision-engine"
	EvidenceCollection ID = "evidence-collection"
	LegalKnowledgeBase ID = "legal-knowledge-base"
	CampaignManagement ID = "campaign-management"
)

// Count is the number of modules in the catalog.
const Count = 6

// Module describes one testable unit.
type Module struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var catalog = [Count]Module{
	{
		ID:          DocumentGeneration,
		Name:        "Document generation",
		Description: "Generates removal requests and legal notices from templates.",
	},
	{
		ID:          ResponseAnalysis,
		Name:        "Response analysis",
		Description: "Classifies replies received from data operators.",
	},
	{
		ID:          DecisionEngine,
		Name:        "Decision engine",
		Description: "Chooses the next escalation step for an open case.",
	},
	{
		ID:          EvidenceCollection,
		Name:        "Evidence collection",
		Description: "Captures and seals proof of submissions and responses.",
	},
	{
		ID:          LegalKnowledgeBase,
		Name:        "Legal knowledge base",
		Description: "Serves statute references used by the other modules.",
	},
	{
		ID:          CampaignManagement,
		Name:        "Campaign management",
		Description: "Schedules bulk removal campaigns across operators.",
	},
}

// All returns the catalog in its fixed order.
func All() []Module {
	out := make([]Module, Count)
	copy(out, catalog[:])
	return out
}

// IDs returns the module ids in catalog order.
func IDs() []ID {
	ids := make([]ID, Count)
	for i, m := range catalog {
		ids[i] = m.ID
	}
	return ids
}

// Lookup returns the module with the given id.
func Lookup(id ID) (Module, bool) {
	i, ok := id.Index()
	if !ok {
		return Module{}, false
	}
	return catalog[i], true
}

// Index returns the catalog position of id.
func (id ID) Index() (int, bool) {
	for i, m := range catalog {
		if m.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Valid reports whether id belongs to the catalog.
func (id ID) Valid() bool {
	_, ok := id.Index()
	return ok
}

func (id ID) String() string { return string(id) }
