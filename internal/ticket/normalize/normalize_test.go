package normalize

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDict() Dictionary {
	return Dictionary{
		CategoryVendors: {
			"WM":              "WASTE_MANAGEMENT",
			"Waste Management": "WASTE_MANAGEMENT",
			"Republic":        "REPUBLIC_SERVICES",
		},
		CategoryMaterials: {
			"class 2 contaminated": "CLASS_2_CONTAMINATED",
		},
	}
}

func TestNormalizeExactMatchCaseInsensitive(t *testing.T) {
	n := New(testDict(), nil)
	assert.Equal(t, "CLASS_2_CONTAMINATED", n.Material("  Class 2 Contaminated  "))
}

func TestNormalizeVendorSubstringBothDirections(t *testing.T) {
	n := New(testDict(), nil)
	assert.Equal(t, "WASTE_MANAGEMENT", n.Vendor("WM Lewisville Invoice"))
	assert.Equal(t, "REPUBLIC_SERVICES", n.Vendor("Republic"))
}

func TestNormalizeMaterialNoSubstringMatch(t *testing.T) {
	n := New(testDict(), nil)
	// materials are not eligible for substring matching, only vendors are.
	assert.Equal(t, "some random soil", n.Material("some random soil"))
}

func TestNormalizeUnmappedReturnsTrimmedInput(t *testing.T) {
	n := New(testDict(), nil)
	assert.Equal(t, "Unknown Hauler", n.Vendor("  Unknown Hauler  "))
}

func TestNormalizeEmptyInputReturnsEmpty(t *testing.T) {
	n := New(testDict(), nil)
	assert.Equal(t, "", n.Vendor("   "))
}

func TestLoadMissingFileFallsBackToPassthrough(t *testing.T) {
	n := Load("/nonexistent/synonyms.yaml", nil)
	require.NotNil(t, n)
	assert.Equal(t, "Some Vendor", n.Vendor("Some Vendor"))
}

func TestLoadMalformedFileFallsBackToPassthrough(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/synonyms.yaml"
	require.NoError(t, os.WriteFile(path, []byte("vendors: [this is not a map"), 0o644))

	n := Load(path, nil)
	assert.Equal(t, "Some Vendor", n.Vendor("Some Vendor"))
}
