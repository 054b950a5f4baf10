package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	codes := []string{
		"card_declined", "insufficient_funds", "expired_card",
		"incorrect_cvc", "invalid_cvc", "incorrect_number", "invalid_number",
		"incorrect_zip", "processing_error", "rate_limit",
		"authentication_required", "payment_intent_authentication_failure",
	}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			assert.True(t, KnownCode(code))
			msg := UserMessage(code, "raw processor text")
			assert.NotEmpty(t, msg)
			assert.NotEqual(t, "raw processor text", msg)
		})
	}

	t.Run("unknown code falls back to raw message", func(t *testing.T) {
		assert.Equal(t, "Do not honor.", UserMessage("do_not_honor", "Do not honor."))
	})

	t.Run("unknown code without message gets generic text", func(t *testing.T) {
		assert.Equal(t, genericDeclineMessage, UserMessage("", ""))
	})
}
