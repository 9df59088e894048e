package browser

// In-page scripts for the playwright driver. Element queries return plain
// objects so the results survive JSON serialization back into Go.

// maskInitJS installs a full-viewport white overlay at document start. It is
// created hidden; the driver toggles it around navigations to hide transient
// resize and repaint flashes from the recording.
const maskInitJS = `(() => {
	if (window.__rwMaskInstalled) return;
	window.__rwMaskInstalled = true;
	const install = () => {
		if (!document.documentElement || document.getElementById('__rw_mask')) return;
		const mask = document.createElement('div');
		mask.id = '__rw_mask';
		mask.style.cssText = 'position:fixed;inset:0;z-index:2147483647;background:#fff;pointer-events:none;visibility:hidden';
		document.documentElement.appendChild(mask);
	};
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', install);
	} else {
		install();
	}
})();`

const maskShowJS = `() => { const m = document.getElementById('__rw_mask'); if (m) m.style.visibility = 'visible'; }`

const maskHideJS = `() => { const m = document.getElementById('__rw_mask'); if (m) m.style.visibility = 'hidden'; }`

const maskRemoveJS = `() => { const m = document.getElementById('__rw_mask'); if (m) m.remove(); }`

// warmupEventsJS pokes lazily-initialized embeds that wait for user activity
// signals before rendering.
const warmupEventsJS = `() => {
	window.dispatchEvent(new Event('resize'));
	window.dispatchEvent(new Event('scroll'));
	window.dispatchEvent(new Event('focus'));
	document.dispatchEvent(new Event('visibilitychange'));
}`

// fontsAndFramesJS resolves once fonts are loaded and two animation frames
// have been painted.
const fontsAndFramesJS = `() => new Promise((resolve) => {
	const frames = () => requestAnimationFrame(() => requestAnimationFrame(resolve));
	if (document.fonts && document.fonts.ready) {
		document.fonts.ready.then(frames, frames);
	} else {
		frames();
	}
})`

const viewportSizeJS = `() => ({ w: window.innerWidth, h: window.innerHeight })`

// firstContentfulPaintJS reports whether a first contentful paint entry
// exists yet.
const firstContentfulPaintJS = `() => performance.getEntriesByType('paint').some((e) => e.name === 'first-contentful-paint')`

// anchorInfoJS maps elements to hover candidates. Takes a CSS selector;
// filters to visible in-viewport elements.
const anchorInfoJS = `(selector) => Array.from(document.querySelectorAll(selector)).map((el) => {
	const r = el.getBoundingClientRect();
	let sameOrigin = false;
	let href = el.href || '';
	try { sameOrigin = !href || new URL(href, location.href).origin === location.origin; } catch (e) {}
	return {
		x: r.x, y: r.y, w: r.width, h: r.height,
		text: (el.innerText || '').trim().slice(0, 120),
		aria: el.getAttribute('aria-label') || '',
		title: el.getAttribute('title') || '',
		href: href,
		sameOrigin: sameOrigin,
	};
}).filter((a) => a.w > 4 && a.h > 4 && a.y + a.h > 0 && a.y < window.innerHeight)`

const headingsJS = `() => Array.from(document.querySelectorAll('h1, h2, h3')).map((el) => {
	const r = el.getBoundingClientRect();
	return {
		x: r.x, y: r.y, w: r.width, h: r.height,
		text: (el.innerText || '').trim().slice(0, 120),
		docY: r.y + window.scrollY,
	};
}).filter((h) => h.w > 4 && h.h > 4 && h.text.length > 0)`

const paragraphsJS = `() => Array.from(document.querySelectorAll('p')).map((el) => {
	const r = el.getBoundingClientRect();
	const words = (el.innerText || '').trim().split(/\s+/).filter(Boolean).length;
	return { x: r.x, y: r.y, w: r.width, h: r.height, words: words };
}).filter((p) => p.w > 4 && p.h > 4 && p.y >= 0 && p.y + p.h <= window.innerHeight && p.words > 0)`

// authPageJS detects password/login surfaces: a password input, or a login
// heading combined with a form.
const authPageJS = `() => {
	if (document.querySelector('input[type="password"]')) return true;
	const heading = Array.from(document.querySelectorAll('h1, h2')).some((h) =>
		/\b(sign in|log ?in|welcome back)\b/i.test(h.innerText || ''));
	return heading && !!document.querySelector('form input');
}`

const scrollYJS = `() => window.scrollY`

// scrollToDocYJS eases the window to an absolute document Y with a single
// minimum-jerk burst inside the page.
const scrollToDocYJS = `(args) => new Promise((resolve) => {
	const minJerk = (u) => 10*u**3 - 15*u**4 + 6*u**5;
	const startY = window.scrollY;
	const delta = args.targetY - startY;
	if (Math.abs(delta) < 2) { resolve(); return; }
	const start = performance.now();
	const frame = (now) => {
		const u = Math.min(1, (now - start) / args.durationMs);
		window.scrollTo(0, startY + delta * minJerk(u));
		if (u < 1) requestAnimationFrame(frame); else resolve();
	};
	requestAnimationFrame(frame);
})`

// findTextTargetsJS returns click candidates containing the given text,
// nearest-match first.
const findTextTargetsJS = `(needle) => {
	const lower = needle.toLowerCase();
	const els = Array.from(document.querySelectorAll('a, button, [role="button"], [role="link"]'));
	return els.map((el) => {
		const text = (el.innerText || '').trim();
		if (!text.toLowerCase().includes(lower)) return null;
		const r = el.getBoundingClientRect();
		let sameOrigin = false;
		let href = el.href || '';
		try { sameOrigin = !href || new URL(href, location.href).origin === location.origin; } catch (e) {}
		return {
			x: r.x, y: r.y, w: r.width, h: r.height,
			text: text.slice(0, 120),
			aria: el.getAttribute('aria-label') || '',
			title: el.getAttribute('title') || '',
			href: href,
			sameOrigin: sameOrigin,
		};
	}).filter((a) => a && a.w > 2 && a.h > 2);
}`

// highlightTextJS selects the first occurrence of the text so the selection
// is visible in the recording. Returns whether a match was found.
const highlightTextJS = `(needle) => {
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	let node;
	while ((node = walker.nextNode())) {
		const idx = node.textContent.toLowerCase().indexOf(needle.toLowerCase());
		if (idx < 0) continue;
		const range = document.createRange();
		range.setStart(node, idx);
		range.setEnd(node, idx + needle.length);
		const sel = window.getSelection();
		sel.removeAllRanges();
		sel.addRange(range);
		node.parentElement.scrollIntoView({ block: 'center' });
		return true;
	}
	return false;
}`
