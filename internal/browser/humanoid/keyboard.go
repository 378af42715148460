package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const focusScript = `(function(sel) {
	const el = (() => { try { return document.querySelector(sel); } catch (e) { return null; } })();
	if (!el) return false;
	el.focus();
	return true;
})(%s)`

// keystrokeScript delivers one character as keydown, keypress, insert,
// input and keyup. The insert uses execCommand where supported and falls
// back to assigning value or textContent.
const keystrokeScript = `(function(sel, ch) {
	const el = (() => { try { return document.querySelector(sel); } catch (e) { return null; } })();
	if (!el) return false;
	const opts = { key: ch, bubbles: true, cancelable: true };
	el.dispatchEvent(new KeyboardEvent('keydown', opts));
	el.dispatchEvent(new KeyboardEvent('keypress', opts));
	let inserted = false;
	if (typeof document.queryCommandSupported === 'function' && document.queryCommandSupported('insertText')) {
		inserted = document.execCommand('insertText', false, ch);
	}
	if (!inserted) {
		if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) {
			el.value += ch;
		} else if (el.isContentEditable) {
			el.textContent += ch;
		}
	}
	el.dispatchEvent(new InputEvent('input', { data: ch, inputType: 'insertText', bubbles: true }));
	el.dispatchEvent(new KeyboardEvent('keyup', opts));
	return true;
})(%s, %s)`

// submitScript returns null when the element is gone, false when it has no
// enclosing form.
const submitScript = `(function(sel) {
	const el = (() => { try { return document.querySelector(sel); } catch (e) { return null; } })();
	if (!el) return null;
	const form = el.form || el.closest('form');
	if (!form) return false;
	if (typeof form.requestSubmit === 'function') form.requestSubmit(); else form.submit();
	return true;
})(%s)`

// Type focuses the element once, then delivers text one character at a
// time with a jittered pause before each keystroke.
func (c *Controller) Type(ctx context.Context, selector, text string) error {
	focused, err := c.runBool(ctx, fmt.Sprintf(focusScript, jsLiteral(selector)))
	if err != nil {
		return fmt.Errorf("humanoid: failed to focus '%s': %w", selector, err)
	}
	if !focused {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}

	for _, r := range text {
		if err := c.executor.Sleep(ctx, c.keyDelay()); err != nil {
			return err
		}
		ok, err := c.runBool(ctx, fmt.Sprintf(keystrokeScript, jsLiteral(selector), jsLiteral(string(r))))
		if err != nil {
			return fmt.Errorf("humanoid: keystroke failed on '%s': %w", selector, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, selector)
		}
	}
	return nil
}

// SubmitForm submits the form enclosing the element. An element outside
// any form is left alone.
func (c *Controller) SubmitForm(ctx context.Context, selector string) error {
	raw, err := c.executor.ExecuteScript(ctx, fmt.Sprintf(submitScript, jsLiteral(selector)))
	if err != nil {
		return fmt.Errorf("humanoid: failed to submit form for '%s': %w", selector, err)
	}
	switch string(raw) {
	case "null", "":
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	case "false":
		c.logger.Debug("No enclosing form to submit.", zap.String("selector", selector))
	}
	return nil
}
