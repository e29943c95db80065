// internal/browser/session/scripts.go
package session

import (
	"encoding/json"
	"fmt"
)

// queryScript runs with `this` bound to the scope (or document) and returns
// matching elements in document order. Each element gets a stable expando key
// so duplicates can be recognized across queries.
const queryScript = `function(kind, pattern) {
	const root = (this && this.nodeType) ? this : document;
	let found = [];
	if (kind === 'xpath') {
		const snap = document.evaluate(pattern, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) {
			const n = snap.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE) found.push(n);
		}
	} else {
		found = Array.from(root.querySelectorAll(pattern));
	}
	window.__sweeperSeq = window.__sweeperSeq || 0;
	for (const el of found) {
		if (!el.__sweeperKey) el.__sweeperKey = 'n' + (++window.__sweeperSeq);
	}
	return found;
}`

const keysScript = `function() { return this.map(function(el) { return el.__sweeperKey; }); }`

const visibleScript = `function() {
	if (!this.isConnected) return false;
	const rect = this.getBoundingClientRect();
	const style = window.getComputedStyle(this);
	return (rect.width > 0 || rect.height > 0) && style.visibility !== 'hidden' && style.display !== 'none';
}`

const textScript = `function() { return this.innerText || this.textContent || ''; }`

const scrollIntoViewScript = `function() { this.scrollIntoView({block: 'center', inline: 'center'}); }`

const clickScript = `function() { this.click(); }`

const dismissScript = `(function() {
	if (document.activeElement && document.activeElement !== document.body) document.activeElement.blur();
	document.body.click();
})()`

func attributeScript(name string) string {
	return fmt.Sprintf(`function() {
	const v = this.getAttribute(%s);
	return v === null ? {present: false, value: ''} : {present: true, value: v};
}`, jsonEncode(name))
}

func hitTestScript(x, y float64) string {
	return fmt.Sprintf(`function() {
	const hit = document.elementFromPoint(%f, %f);
	return !!hit && (hit === this || this.contains(hit));
}`, x, y)
}

func indexScript(i int) string {
	return fmt.Sprintf(`function() { return this[%d]; }`, i)
}

func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
