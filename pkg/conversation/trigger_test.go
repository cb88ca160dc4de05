package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerWordBoundaries(t *testing.T) {
	patterns, err := compileTriggerPatterns([]string{"nova"}, nil)
	require.NoError(t, err)

	for text, want := range map[string]bool{
		"hey nova, can you help?": true,
		"NOVA please":             true,
		"@nova what do you think": true,
		"nova":                    true,
		"(nova)":                  true,
		"novalith is a product":   false,
		"supernova imploded":      false,
		"no mention at all":       false,
		"":                        false,
	} {
		assert.Equal(t, want, matchesAny(patterns, text), "text: %q", text)
	}
}

func TestTriggerAliasesAndExtras(t *testing.T) {
	patterns, err := compileTriggerPatterns([]string{"nova", "assistant"}, []string{`(?i)^!ask\b`})
	require.NoError(t, err)

	assert.True(t, matchesAny(patterns, "assistant, summarize this"))
	assert.True(t, matchesAny(patterns, "!ask what changed"))
	assert.False(t, matchesAny(patterns, "please !ask later")) // anchored extra
}

func TestTriggerQuotesMetaCharacters(t *testing.T) {
	// A name containing regexp metacharacters is matched literally.
	patterns, err := compileTriggerPatterns([]string{"c3.po"}, nil)
	require.NoError(t, err)

	assert.True(t, matchesAny(patterns, "ping c3.po now"))
	assert.False(t, matchesAny(patterns, "ping c3xpo now"))
}

func TestTriggerInvalidExtraPattern(t *testing.T) {
	_, err := compileTriggerPatterns([]string{"nova"}, []string{"("})
	assert.Error(t, err)
}

func TestTriggerEmptyNamesSkipped(t *testing.T) {
	patterns, err := compileTriggerPatterns([]string{"", "nova"}, []string{""})
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}
