package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestPrompt_VariantTag(t *testing.T) {
	p := Prompt{Version: 3, Temperature: ptr(0.7), TopP: ptr(0.95), TopK: ptr(40), MaxTokens: ptr(4096)}
	assert.Equal(t, "v3.t70.p95.k40.n4096", p.VariantTag())

	// без параметров используются значения по умолчанию
	assert.Equal(t, "v1.t70.p95.k40.n4096", Prompt{Version: 1}.VariantTag())
}

func TestPrompt_LegacyDescription(t *testing.T) {
	p := Prompt{
		Version:     2,
		Description: `JSON:{"description":"Poetic voicing","config":{"temperature":1.2,"top_p":0.5,"top_k":10,"max_tokens":256}}`,
	}
	desc, cfg := p.ParseDescription()
	assert.Equal(t, "Poetic voicing", desc)
	require.NotNil(t, cfg)
	assert.Equal(t, "v2.t120.p50.k10.n256", p.VariantTag())

	// явное поле версии важнее конфига из описания
	p.MaxTokens = ptr(1000)
	assert.Equal(t, 1000, p.Config().MaxTokens)

	plain := Prompt{Description: "JSON:{broken"}
	desc, cfg = plain.ParseDescription()
	assert.Equal(t, "JSON:{broken", desc)
	assert.Nil(t, cfg)
}

func TestModelConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultModelConfig.Validate())

	err := ModelConfig{Temperature: 3, TopP: 2, MaxTokens: 0}.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "temperature")
	assert.Contains(t, err.Error(), "top_p")
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestGroupPrompts(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	prompts := []Prompt{
		{ID: "1", Slug: "zeta", Version: 1, CreatedAt: day(1)},
		{ID: "2", Slug: "voicing", Version: 1, CreatedAt: day(1)},
		{ID: "3", Slug: "voicing", Version: 2, CreatedAt: day(3), IsActive: true},
		{ID: "4", Slug: "voicing", Version: 3, CreatedAt: day(5)},
		{ID: "5", Slug: "alpha", Version: 1, CreatedAt: day(2)},
		{ID: "6", Slug: "system", Version: 1, CreatedAt: day(2)},
	}

	groups := GroupPrompts(prompts)
	require.Len(t, groups, 4)
	assert.Equal(t, []string{"system", "voicing", "alpha", "zeta"},
		[]string{groups[0].Slug, groups[1].Slug, groups[2].Slug, groups[3].Slug})

	voicing := groups[1]
	assert.Equal(t, "3", voicing.Active.ID, "активной считается первая is_active")
	require.Len(t, voicing.History, 2)
	assert.Equal(t, "4", voicing.History[0].ID, "история отсортирована от новых к старым")
	assert.Equal(t, "2", voicing.History[1].ID)
	assert.Equal(t, 3, voicing.Versions())

	assert.Equal(t, "1", groups[3].Active.ID, "без is_active берется первая версия")
}

func TestNextVersion(t *testing.T) {
	prompts := []Prompt{{Slug: "a", Version: 2}, {Slug: "a", Version: 7}, {Slug: "b", Version: 9}}
	assert.Equal(t, 8, NextVersion(prompts, "a"))
	assert.Equal(t, 1, NextVersion(prompts, "new-prompt"))
}

func TestTemplates(t *testing.T) {
	tmpl := "Voice {{word}} through {{ layers }}; again {{word}} and {{unknown}}"
	assert.Equal(t, []string{"word", "layers", "unknown"}, TemplateVariables(tmpl))
	assert.Equal(t,
		"Voice light through L1; again light and {{unknown}}",
		RenderTemplate(tmpl, map[string]string{"word": "light", "layers": "L1"}),
	)
}

func TestFillTestInputs(t *testing.T) {
	p := Pattern{Word: "light", Voicing: "V", Essence: "E", Layers: "L", ImageBrief: "B"}
	got := FillTestInputs(p, []string{"word", "word_voicing", "description", "layers", "brief", "other"})
	assert.Equal(t, map[string]string{
		"word": "light", "word_voicing": "V", "description": "E", "layers": "L", "brief": "B",
	}, got)
}

func TestManageActions(t *testing.T) {
	a, err := ParseManageAction("clear_brief")
	require.NoError(t, err)
	assert.Equal(t, FieldImageBrief, a.Field())

	_, err = ParseManageAction("drop_table")
	assert.ErrorIs(t, err, ErrUnknownAction)

	p := Pattern{Layers: "L", ImageURL: "https://img"}
	enabled := map[ManageAction]bool{}
	for _, o := range ManageOptions(p) {
		enabled[o.Action] = o.Enabled
	}
	assert.True(t, enabled[ActionClearLayers])
	assert.False(t, enabled[ActionClearVoicing])
	assert.True(t, enabled[ActionClearImage])
	assert.True(t, enabled[ActionDeleteAll])
}

func TestFilterAndSortPatterns(t *testing.T) {
	ps := []Pattern{
		{Word: "Light", CreatedAt: time.Unix(1, 0)},
		{Word: "river", CreatedAt: time.Unix(3, 0)},
		{Word: "lighthouse", CreatedAt: time.Unix(2, 0)},
	}
	assert.Len(t, FilterPatterns(ps, " LIGHT "), 2)
	assert.Len(t, FilterPatterns(ps, ""), 3)

	SortNewestFirst(ps)
	assert.Equal(t, []string{"river", "lighthouse", "Light"}, []string{ps[0].Word, ps[1].Word, ps[2].Word})

	found, ok := FindPattern(ps, "light")
	require.True(t, ok)
	assert.Equal(t, "Light", found.Word)
}

func TestLineageTree(t *testing.T) {
	tree := LineageTree{Roots: []*LineageNode{
		{ID: "r", Children: []*LineageNode{
			{ID: "c1", ParentPatternID: "r", Children: []*LineageNode{{ID: "g1", ParentPatternID: "c1"}}},
			{ID: "c2", ParentPatternID: "r"},
		}},
	}}
	assert.Equal(t, 4, tree.Count())
	require.NotNil(t, tree.Find("g1"))
	assert.Nil(t, tree.Find("zz"))
	assert.Equal(t, []string{"r", "c1", "g1"}, tree.PathTo("g1"))
	assert.True(t, tree.Roots[0].IsRoot())
}
