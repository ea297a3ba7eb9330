package browser

// Names of the functions exposed to the page.
const (
	bindingLoad     = "__vaultLoad"
	bindingMutation = "__vaultMutation"
	bindingSubmit   = "__vaultSubmit"
	bindingMessage  = "__vaultMessage"
)

// initScript runs in every document before page scripts. Child frames are
// left alone: only the top-level document is reported. It stamps stable
// identifiers on elements, mirrors live input values into attributes so a
// serialized snapshot carries what the user typed, and reports loads,
// element additions and form submissions to the agent. Typed page messages
// are passed on with their origin and whether this window posted them.
const initScript = `(() => {
  if (window !== window.top) return;
  if (window.__vaultAgent) return;
  window.__vaultAgent = true;

  const ATTR = 'data-vault-id';
  const stamp = (root) => {
    if (!(root instanceof Element)) return;
    if (!root.hasAttribute(ATTR)) root.setAttribute(ATTR, crypto.randomUUID());
    root.querySelectorAll('*:not([' + ATTR + '])').forEach((el) => el.setAttribute(ATTR, crypto.randomUUID()));
  };
  const snapshot = () => {
    document.querySelectorAll('input').forEach((el) => {
      if (el.value !== el.getAttribute('value')) el.setAttribute('value', el.value);
    });
    return document.documentElement.outerHTML;
  };

  let queued = false;
  const observer = new MutationObserver((mutations) => {
    let added = false;
    for (const m of mutations) {
      if (m.addedNodes.length > 0) {
        m.addedNodes.forEach(stamp);
        added = true;
      }
    }
    if (added && !queued) {
      queued = true;
      queueMicrotask(() => {
        queued = false;
        window.` + bindingMutation + `(snapshot());
      });
    }
  });

  const start = () => {
    stamp(document.documentElement);
    observer.observe(document.documentElement, { childList: true, subtree: true });
    window.` + bindingLoad + `(location.href, snapshot());
  };

  document.addEventListener('submit', (event) => {
    const form = event.target;
    if (!(form instanceof HTMLFormElement)) return;
    stamp(form);
    window.` + bindingSubmit + `(form.getAttribute(ATTR), snapshot());
  }, true);

  window.addEventListener('message', (event) => {
    const data = event.data;
    if (!data || typeof data !== 'object' || typeof data.type !== 'string') return;
    window.` + bindingMessage + `(JSON.stringify(data), event.origin, event.source === window);
  });

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', start);
  } else {
    start();
  }
})();`
