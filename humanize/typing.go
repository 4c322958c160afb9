package humanize

import (
	"context"
	"fmt"

	"github.com/Nehilsa2/resume_automation/browser"
)

// TypeText types text into el one character at a time, sleeping a
// keystroke delay after each character.
//
// Pasting the whole value at once produces a single input event, which is
// trivially different from a person typing.
func TypeText(ctx context.Context, c browser.Client, el browser.Element, text string, p *Pacer) error {
	for i, r := range text {
		if err := c.Type(ctx, el, string(r)); err != nil {
			return fmt.Errorf("type character %d: %w", i, err)
		}
		if err := p.Keystroke(ctx); err != nil {
			return err
		}
	}
	return nil
}
