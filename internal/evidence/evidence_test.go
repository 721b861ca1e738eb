package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTPMQuoteRendersBothPhases(t *testing.T) {
	quote := NewMockTPMQuote()

	supported := quote.RenderSupported()
	require.NotNil(t, supported)
	assert.Equal(t, "certification", supported["evidence_class"])
	assert.Equal(t, "tpm_quote", supported["evidence_type"])

	collected := quote.RenderCollected()
	require.NotNil(t, collected)
	assert.Equal(t, "certification", collected["evidence_class"])
}

func TestCertificationRendersNilWhenUnset(t *testing.T) {
	c := &Certification{EvidenceType: "tpm_quote"}
	assert.Nil(t, c.RenderSupported())
	assert.Nil(t, c.RenderCollected())
}

func TestMockUEFILogAndIMALogDiffer(t *testing.T) {
	uefi := NewMockUEFILog()
	ima := NewMockIMALog()

	assert.False(t, uefi.Capabilities.SupportsPartialAccess)
	assert.True(t, ima.Capabilities.SupportsPartialAccess)
	assert.NotEqual(t, uefi.Data.Entries, ima.Data.Entries)
}

func TestCloneIsIndependent(t *testing.T) {
	var item Item = NewMockTPMQuote()
	clone := item.Clone().(*Certification)
	clone.Data.Signature = "mutated"

	original := item.(*Certification)
	assert.NotEqual(t, original.Data.Signature, clone.Data.Signature)
}
