// internal/monitor/capture/script.go
package capture

import (
	"fmt"

	"github.com/xkilldash9x/actionwatch/api/schemas"
)

// Selector is the element discovery query.
const Selector = "a, button, input, select, textarea, [id], [data-agent-id]"

// captureTemplate takes the discovery selector, the element cap and the text cap.
//
// Element keys: id, then data-agent-id, then "{tag}-{ordinal}" counted over the
// discovered elements of that tag. Field keys: name, then id, then
// "{tag}-{ordinal}" within the form. Form keys: id, then name, then
// "form-{ordinal}". The first element to claim a key keeps it.
const captureTemplate = `(() => {
  const selector = %q;
  const maxElements = %d;
  const maxText = %d;
  const clean = (s) => String(s || '').replace(/\s+/g, ' ').trim().slice(0, maxText);
  const valueOf = (el) => (typeof el.value === 'string' ? el.value : '');

  const elements = {};
  const tagCounts = {};
  const nodes = Array.from(document.querySelectorAll(selector)).slice(0, maxElements);
  for (const el of nodes) {
    const tag = el.tagName.toLowerCase();
    const ordinal = tagCounts[tag] || 0;
    tagCounts[tag] = ordinal + 1;
    const key = el.id || el.getAttribute('data-agent-id') || (tag + '-' + ordinal);
    if (Object.prototype.hasOwnProperty.call(elements, key)) continue;
    elements[key] = {
      tag: tag,
      visible: el.offsetParent !== null,
      text: clean(el.innerText || el.textContent),
      value: valueOf(el),
      disabled: !!el.disabled,
      href: el.href ? String(el.href) : ''
    };
  }

  const forms = {};
  Array.from(document.forms).forEach((form, formOrdinal) => {
    const formKey = form.id || form.getAttribute('name') || ('form-' + formOrdinal);
    if (Object.prototype.hasOwnProperty.call(forms, formKey)) return;
    const fields = {};
    const fieldCounts = {};
    for (const f of Array.from(form.elements)) {
      const tag = f.tagName.toLowerCase();
      if (tag === 'fieldset' || tag === 'object' || tag === 'output') continue;
      const ordinal = fieldCounts[tag] || 0;
      fieldCounts[tag] = ordinal + 1;
      const name = f.getAttribute('name') || f.id || (tag + '-' + ordinal);
      const type = (f.type || tag).toLowerCase();
      let value = valueOf(f);
      if (type === 'checkbox') value = f.checked ? (f.value || 'on') : '';
      if (type === 'radio') {
        if (!f.checked) {
          if (!Object.prototype.hasOwnProperty.call(fields, name)) {
            fields[name] = { type: type, value: '', disabled: !!f.disabled, required: !!f.required };
          }
          continue;
        }
      } else if (Object.prototype.hasOwnProperty.call(fields, name)) {
        continue;
      }
      fields[name] = { type: type, value: value, disabled: !!f.disabled, required: !!f.required };
    }
    forms[formKey] = {
      id: formKey,
      action: form.getAttribute('action') || '',
      method: (form.getAttribute('method') || 'get').toLowerCase(),
      fields: fields
    };
  });

  return { url: location.href, title: document.title, elements: elements, forms: forms };
})()`

// Script returns the capture expression for the given element cap.
func Script(maxElements int) string {
	return fmt.Sprintf(captureTemplate, Selector, maxElements, schemas.MaxElementText)
}
