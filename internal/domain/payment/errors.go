package payment

const genericDeclineMessage = "Your payment could not be processed. Please try another payment method."

var declineMessages = map[string]string{
	"card_declined":                         "Your card was declined. Please try a different card.",
	"insufficient_funds":                    "Your card has insufficient funds. Please try a different card.",
	"expired_card":                          "Your card has expired. Please check the expiration date or use a different card.",
	"incorrect_cvc":                         "Your card's security code is incorrect.",
	"invalid_cvc":                           "Your card's security code is invalid.",
	"incorrect_number":                      "Your card number is incorrect.",
	"invalid_number":                        "Your card number is invalid.",
	"incorrect_zip":                         "Your card's postal code is incorrect.",
	"processing_error":                      "An error occurred while processing your card. Please try again.",
	"rate_limit":                            "Too many payment attempts. Please wait a moment and try again.",
	"authentication_required":               "Your bank requires additional authentication. Please try again and complete the verification.",
	"payment_intent_authentication_failure": "We could not verify your payment. Please try again or use a different card.",
}

// UserMessage maps a processor decline code to a customer-facing message.
// Unknown codes fall back to the processor's own message.
func UserMessage(code, raw string) string {
	if msg, ok := declineMessages[code]; ok {
		return msg
	}
	if raw != "" {
		return raw
	}
	return genericDeclineMessage
}

// KnownCode reports whether code has a dedicated message
func KnownCode(code string) bool {
	_, ok := declineMessages[code]
	return ok
}
