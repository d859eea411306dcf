package acquire

import (
	"strconv"
	"strings"
	"time"
)

// scrollScript scrolls in fixed steps until the page bottom or the distance
// cap, resolving with the distance travelled.
const scrollScript = `new Promise((resolve) => {
  const step = __STEP__, interval = __INTERVAL__, maxDistance = __MAX__;
  let travelled = 0;
  const timer = setInterval(() => {
    window.scrollBy(0, step);
    travelled += step;
    const height = document.documentElement.scrollHeight || document.body.scrollHeight;
    if (window.scrollY + window.innerHeight >= height || travelled >= maxDistance) {
      clearInterval(timer);
      window.scrollTo(0, 0);
      resolve(travelled);
    }
  }, interval);
})`

// domSurveyScript walks the element tree including shadow roots and reports
// computed colours, first-choice font families, image sources and inline CSS.
const domSurveyScript = `(() => {
  const limit = __LIMIT__;
  const colors = new Set(), fonts = new Set(), images = new Set(), css = [];
  const elements = [];
  const walk = (root) => {
    for (const el of root.querySelectorAll('*')) {
      elements.push(el);
      if (el.shadowRoot) {
        for (const style of el.shadowRoot.querySelectorAll('style')) css.push(style.textContent || '');
        walk(el.shadowRoot);
      }
    }
  };
  walk(document);
  for (const style of document.querySelectorAll('style')) css.push(style.textContent || '');

  const keepColor = (value) => {
    if (!value || !/^(rgb|hsl)a?\(/.test(value)) return;
    if (/,\s*0(\.0+)?\)$/.test(value) || /\/\s*0(\.0+)?\)$/.test(value)) return;
    colors.add(value);
  };
  const addURL = (raw) => {
    if (!raw) return;
    const value = String(raw).trim();
    if (!value || value.startsWith('data:') || value.startsWith('#')) return;
    try { images.add(new URL(value, document.baseURI).href); } catch (e) {}
  };
  const addSrcset = (srcset) => {
    if (!srcset) return;
    for (const part of srcset.split(',')) addURL(part.trim().split(/\s+/)[0]);
  };

  for (const el of elements.slice(0, limit)) {
    const cs = window.getComputedStyle(el);
    keepColor(cs.color);
    keepColor(cs.backgroundColor);
    const family = (cs.fontFamily || '').split(',')[0].trim().replace(/^["']|["']$/g, '');
    if (family && family !== 'inherit') fonts.add(family);
    const bg = cs.backgroundImage;
    if (bg && bg !== 'none') {
      for (const m of bg.matchAll(/url\(["']?(.*?)["']?\)/g)) addURL(m[1]);
    }
  }
  for (const el of elements) {
    const tag = el.tagName.toLowerCase();
    if (tag === 'img') {
      addURL(el.currentSrc || el.getAttribute('src') || el.getAttribute('data-src') ||
        el.getAttribute('data-original') || el.getAttribute('data-lazy-src'));
      addSrcset(el.getAttribute('srcset'));
      addSrcset(el.getAttribute('data-srcset'));
    } else if (tag === 'source') {
      addSrcset(el.getAttribute('srcset'));
    } else if (tag === 'svg' || tag === 'image') {
      addURL(el.getAttribute('href'));
      addURL(el.getAttribute('xlink:href'));
    }
  }
  return {colors: [...colors], fonts: [...fonts], images: [...images], css: css.join('\n').slice(0, 524288)};
})()`

func buildScrollScript(step, maxDistance int, interval time.Duration) string {
	return strings.NewReplacer(
		"__STEP__", strconv.Itoa(step),
		"__INTERVAL__", strconv.FormatInt(interval.Milliseconds(), 10),
		"__MAX__", strconv.Itoa(maxDistance),
	).Replace(scrollScript)
}

func buildDOMSurveyScript(limit int) string {
	return strings.Replace(domSurveyScript, "__LIMIT__", strconv.Itoa(limit), 1)
}
