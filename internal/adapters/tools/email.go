package tools

import (
	"context"

	"github.com/eleven-am/specter/internal/domain"
)

func emailSend(context.Context, map[string]interface{}) (interface{}, error) {
	return domain.ToolFail("Email connector not configured. Set SMTP credentials to enable."), nil
}

func emailSearch(context.Context, map[string]interface{}) (interface{}, error) {
	return domain.ToolFail("Email connector not configured. Set IMAP credentials to enable."), nil
}
