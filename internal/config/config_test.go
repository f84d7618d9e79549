package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVariants(t *testing.T) {
	cfg := Default(VariantContacts)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"lead", "in_progress", "completed"}, cfg.StageIDs())
	assert.Equal(t, DefaultPageSize, cfg.API.PageSize)
	assert.Equal(t, DefaultDebounce, cfg.Search.Debounce)

	credit := Default(VariantCredit)
	assert.Equal(t, []string{"new", "analysis", "rejected", "approved", "closed"}, credit.StageIDs())
	assert.True(t, credit.HasStage("analysis"))
	assert.False(t, credit.HasStage("lead"))
}

func TestFromYAMLAppliesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
funnel:
  variant: credit
api:
  page_size: 20
search:
  debounce: 150ms
`))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.API.PageSize)
	assert.Equal(t, 150*time.Millisecond, cfg.Search.Debounce)
	assert.Len(t, cfg.Funnel.Stages, 5)
	assert.Equal(t, "Analysis", cfg.StageTitle("analysis"))
	assert.Equal(t, "unknown", cfg.StageTitle("unknown"))
}

func TestValidateRejectsDuplicateStages(t *testing.T) {
	_, err := FromYAML([]byte(`
funnel:
  stages:
    - id: lead
    - id: lead
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")

	_, err = FromYAML([]byte(`
funnel:
  stages:
    - id: ""
`))
	require.Error(t, err)
}

func TestValidateBoundsPageSize(t *testing.T) {
	cfg := Default(VariantContacts)
	cfg.API.PageSize = MaxPageSize
	require.NoError(t, cfg.Validate())

	_, err := FromYAML([]byte(`
api:
  page_size: 500
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 200")
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault(VariantCredit)))
	require.NoError(t, err)
	assert.Equal(t, VariantCredit, cfg.Funnel.Variant)
	assert.Equal(t, Default(VariantCredit).StageIDs(), cfg.StageIDs())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault(VariantContacts)), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "lead", cfg.StageIDs()[0])
}
