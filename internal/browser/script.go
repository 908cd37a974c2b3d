package browser

import (
	"encoding/json"
	"fmt"
)

// DOM helpers run with the matched element bound to this. They take no
// arguments so both engines can evaluate them the same way.

const jsText = `function() { return (this.textContent || "").trim(); }`

const jsVisible = `function() {
	const style = window.getComputedStyle(this);
	const rect = this.getBoundingClientRect();
	return style.visibility !== "hidden" && style.display !== "none" && rect.width > 0 && rect.height > 0;
}`

const jsUnlock = `function() {
	this.removeAttribute("readonly");
	this.style.display = "block";
	return true;
}`

const jsClear = `function() {
	this.focus();
	if ("value" in this) { this.value = ""; }
	return true;
}`

func jsAttribute(name string) string {
	return fmt.Sprintf(`function() { return this.getAttribute(%s); }`, quote(name))
}

func jsRemoveClass(class string) string {
	return fmt.Sprintf(`function() { this.classList.remove(%s); return true; }`, quote(class))
}

// jsAdjacent climbs from the anchor until an ancestor also holds a target
// match, then picks the match nearest the anchor's row, left side first.
func jsAdjacent(target string) string {
	return fmt.Sprintf(`function() {
	const target = %s;
	const a = this.getBoundingClientRect();
	for (let el = this.parentElement; el; el = el.parentElement) {
		const found = Array.from(el.querySelectorAll(target)).filter(f => f !== this);
		if (found.length === 0) { continue; }
		const left = found.filter(f => f.getBoundingClientRect().right <= a.left + 1);
		const pool = left.length ? left : found;
		const dist = f => Math.abs(f.getBoundingClientRect().top - a.top);
		pool.sort((x, y) => dist(x) - dist(y));
		return pool[0].innerHTML;
	}
	return null;
}`, quote(target))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
