package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogOrder(t *testing.T) {
	assert.Equal(t, []ID{
		DocumentGeneration,
		ResponseAnalysis,
		DecisionEngine,
		EvidenceCollection,
		LegalKnowledgeBase,
		CampaignManagement,
	}, IDs())
	assert.Len(t, All(), Count)
}

func TestLookup(t *testing.T) {
	m, ok := Lookup(EvidenceCollection)
	assert.True(t, ok)
	assert.Equal(t, "Evidence collection", m.Name)

	_, ok = Lookup("billing")
	assert.False(t, ok)
	assert.False(t, ID("billing").Valid())

	i, ok := CampaignManagement.Index()
	assert.True(t, ok)
	assert.Equal(t, 5, i)
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	all[0].Name = "changed"
	m, _ := Lookup(DocumentGeneration)
	assert.Equal(t, "Document generation", m.Name)
}
