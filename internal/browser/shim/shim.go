// Package shim holds the page scripts shared by the browser backends. Every
// script is an arrow function whose result is a JSON string, so the chromedp
// and rod backends decode identical payloads into identical Go values.
package shim

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// QueryElements lists the elements matching a selector in document order.
const QueryElements = `(selector) => JSON.stringify(
	Array.from(document.querySelectorAll(selector)).map((el) => ({
		tag: el.tagName.toLowerCase(),
		id: el.id || "",
		name: el.getAttribute("name") || "",
		type: el.getAttribute("type") || "",
	}))
)`

// SetValue assigns a value to the first match and fires the events page
// scripts listen for.
const SetValue = `(selector, value) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify({ ok: false });
	if (typeof el.focus === "function") el.focus();
	el.value = value;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	if (typeof el.blur === "function") el.blur();
	return JSON.stringify({ ok: true });
}`

// Click schedules a click on the first match and returns before any handler
// runs, so a handler that navigates cannot stall the call.
const Click = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify({ ok: false });
	setTimeout(() => el.click(), 0);
	return JSON.stringify({ ok: true });
}`

// Content reads the inner markup and rendered text of the first match.
const Content = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return JSON.stringify({ present: false, html: "", text: "" });
	return JSON.stringify({
		present: true,
		html: el.innerHTML,
		text: el.innerText || el.textContent || "",
	});
}`

// ReadyState reports document construction progress and the current address.
const ReadyState = `() => JSON.stringify({ state: document.readyState, url: location.href })`

// Ack is the result of scripts that act on a single element.
type Ack struct {
	OK bool `json:"ok"`
}

// Document is the result of ReadyState.
type Document struct {
	State string `json:"state"`
	URL   string `json:"url"`
}

// Constructed reports whether the DOM of a real page has been built.
func (d Document) Constructed() bool {
	if d.URL == "" || d.URL == "about:blank" {
		return false
	}
	return d.State == "interactive" || d.State == "complete"
}

// Call renders fn applied to args as a self-contained expression, for
// backends that evaluate expressions rather than functions.
func Call(fn string, args ...any) (string, error) {
	if strings.TrimSpace(fn) == "" {
		return "", fmt.Errorf("script is empty")
	}
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(encoded, ", ")), nil
}

// Decode unmarshals a script's JSON string result into v.
func Decode(raw string, v any) error {
	if raw == "" {
		return fmt.Errorf("script returned no result")
	}
	if err := json.UnmarshalFromString(raw, v); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}
