package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "pt-BR", opts.Locale)
	assert.Equal(t, "America/Sao_Paulo", opts.TimezoneID)
	assert.Contains(t, opts.ExtraHeaders["Accept-Language"], "pt-BR")
}

func TestDetectBlock(t *testing.T) {
	assert.NoError(t, DetectBlock(`<html><li class="ui-search-result">Fritadeira</li></html>`))
	assert.ErrorIs(t, DetectBlock(`<div id="CAPTCHA-container"></div>`), ErrBlocked)
	assert.ErrorIs(t, DetectBlock(`<p>Para continuar, acesse sua conta</p>`), ErrBlocked)
}
