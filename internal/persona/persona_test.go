package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	p := Build("debugging_detective", "why does my loop hang?", map[string]any{"file": "main.go"})

	assert.Equal(t, "debugging_detective", p.Variant)
	assert.True(t, strings.HasPrefix(p.System, "You are Mama Bear, a Problem-Solving Specialist"))
	assert.Contains(t, p.System, "methodical, persistent, systematic")
	assert.Contains(t, p.System, "Podplay Sanctuary")
	assert.Equal(t, "Context: {\"file\":\"main.go\"}\n\nwhy does my loop hang?", p.User)

	flat := p.Flatten()
	assert.True(t, strings.HasPrefix(flat, p.System))
	assert.True(t, strings.HasSuffix(flat, "why does my loop hang?"))
}

func TestBuild_UnknownVariant(t *testing.T) {
	p := Build("grizzly", "hi", nil)
	assert.Equal(t, DefaultVariant, p.Variant)
	assert.Contains(t, p.System, "Strategic AI Assistant")
	assert.Equal(t, "hi", p.User)
}

func TestVariants(t *testing.T) {
	names := Variants()
	assert.Len(t, names, 9)
	assert.Contains(t, names, "gentle_mentor")
	assert.Contains(t, names, DefaultVariant)
	for _, name := range names {
		_, used := Lookup(name)
		assert.Equal(t, name, used)
	}
}

func TestFlatten_NoSystem(t *testing.T) {
	assert.Equal(t, "hello", Prompt{User: "hello"}.Flatten())
}

func TestSystemNotice(t *testing.T) {
	long := strings.Repeat("ü", 80)
	notice := SystemNotice(long)

	assert.True(t, strings.HasPrefix(notice, "🐻 **Mama Bear System Notice**"))
	assert.Contains(t, notice, "\""+strings.Repeat("ü", 50)+"...\"")
	assert.NotContains(t, notice, strings.Repeat("ü", 51))

	assert.Contains(t, SystemNotice("short"), "\"short...\"")
}
