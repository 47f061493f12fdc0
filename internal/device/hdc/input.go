package hdc

import (
	"context"
	"strings"
)

// TypeText replaces the focused field's content with text. uitest cannot
// inject newlines inside a text command, so multi-line input is sent line
// by line with an Enter key between.
func (c *Controller) TypeText(ctx context.Context, text string) error {
	if err := c.ClearText(ctx); err != nil {
		return err
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			if _, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "text", line)...); err != nil {
				return err
			}
		}
		if i < len(lines)-1 {
			if _, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "keyEvent", keyEnter)...); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearText selects the field's content and deletes it.
func (c *Controller) ClearText(ctx context.Context) error {
	if _, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "keyEvent", keyCtrl, keyA)...); err != nil {
		return err
	}
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "keyEvent", keyDelete)...)
	return err
}
