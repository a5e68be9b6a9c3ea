package browser

import (
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/rvlookup/internal/config"
)

func TestDefaultAllocatorOptions(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.NewDefaultConfig().Browser)
		assert.Len(t, opts, len(chromedp.DefaultExecAllocatorOptions)+3)
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		headless := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		headed := DefaultAllocatorOptions(config.BrowserConfig{Headless: false})
		assert.Len(t, headed, len(headless)+1)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		plain := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		insecure := DefaultAllocatorOptions(config.BrowserConfig{Headless: true, IgnoreTLSErrors: true})
		assert.Len(t, insecure, len(plain)+2)
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		plain := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		custom := DefaultAllocatorOptions(config.BrowserConfig{
			Headless: true,
			Args:     []string{"--custom-arg1", "--window-size=1280,800", "--"},
		})
		assert.Len(t, custom, len(plain)+2, "empty flags are skipped")
	})

	t.Run("ExecPathAndUserAgent", func(t *testing.T) {
		plain := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		opts := DefaultAllocatorOptions(config.BrowserConfig{
			Headless:  true,
			ExecPath:  "~/bin/chromium",
			UserAgent: "rvlookup-test",
		})
		assert.Len(t, opts, len(plain)+2)
	})
}
