package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/studio-automation/internal/domain"
)

func newRenderer() *Renderer {
	return New(domain.StudioInfo{Name: "Outbreak Studio", Phone: "555-0100", SiteURL: "https://example.test"})
}

func TestRenderMissingVariableIsEmpty(t *testing.T) {
	r := newRenderer()
	got := r.Render("Hi {{name}}, your class {{eventTitle}} is on {{eventDate}}",
		map[string]string{"name": "Ana", "eventTitle": "Mat Flow"})
	assert.Equal(t, "Hi Ana, your class Mat Flow is on ", got)
}

func TestRenderCaseInsensitive(t *testing.T) {
	r := newRenderer()
	vars := map[string]string{"firstName": "Ana", "EventTitle": "Reformer"}
	assert.Equal(t, "Ana / Ana / Reformer", r.Render("{{FIRSTNAME}} / {{ firstname }} / {{eventtitle}}", vars))
}

func TestRenderStudioConstants(t *testing.T) {
	r := newRenderer()
	got := r.Render("Call {{studioPhone}} or visit {{siteUrl}} - {{studioName}}", nil)
	assert.Equal(t, "Call 555-0100 or visit https://example.test - Outbreak Studio", got)
}

func TestRenderContextOverridesStudio(t *testing.T) {
	r := newRenderer()
	assert.Equal(t, "Pop-up", r.Render("{{studioName}}", map[string]string{"studioName": "Pop-up"}))
}

func TestRenderFilters(t *testing.T) {
	r := newRenderer()
	assert.Equal(t, "ANA", r.Render("{{ Name | upcase }}", map[string]string{"name": "ana"}))
}

func TestRenderInvalidLiquidFallsBack(t *testing.T) {
	r := newRenderer()
	got := r.Render("{% endif %}Hi {{name}}{{missing}}!", map[string]string{"name": "Ana"})
	assert.Equal(t, "{% endif %}Hi Ana!", got)
}

func TestRenderPlainText(t *testing.T) {
	r := newRenderer()
	assert.Equal(t, "no placeholders", r.Render("no placeholders", nil))
}

func TestRenderCachesTemplates(t *testing.T) {
	r := newRenderer()
	for _, name := range []string{"A", "B"} {
		assert.Equal(t, "Hi "+name, r.Render("Hi {{name}}", map[string]string{"name": name}))
	}
	count := 0
	r.cache.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 1, count)
}

func TestRecipientVars(t *testing.T) {
	vars := RecipientVars(&domain.Recipient{Name: "Ana Lima", Email: "ana@example.com"})
	assert.Equal(t, "Ana", vars[KeyFirstName])
	assert.Equal(t, "Ana Lima", vars[KeyName])
	assert.Empty(t, RecipientVars(nil))

	merged := Merge(map[string]string{"a": "1", "b": "1"}, map[string]string{"b": "2"})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, merged)
}

func TestRenderFallbackKeepsBracesInValues(t *testing.T) {
	r := newRenderer()
	got := r.Render("{% endif %}Code: {{code}} {{ missing | upcase }}", map[string]string{"code": "{{promo}}"})
	assert.Equal(t, "{% endif %}Code: {{promo}} ", got)
}

func TestRenderCaseCollisionIsDeterministic(t *testing.T) {
	r := newRenderer()
	vars := map[string]string{"FirstName": "Upper", "firstname": "lower", "FIRSTNAME": "shout"}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "lower", r.Render("{{firstName}}", vars))
		assert.Equal(t, "lower", substitute("{{firstName}}", r.dictionary(vars)))
	}
}

func TestMergeLaterMapWinsAcrossCase(t *testing.T) {
	merged := Merge(map[string]string{"FirstName": "from trigger"}, map[string]string{"firstName": "Ana"})
	assert.Equal(t, map[string]string{"firstname": "Ana"}, merged)
}
