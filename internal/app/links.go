package app

import (
	"net/url"
	"strings"
)

// LinkOpener hands a URL to whatever can open it: a browser, a phone, a terminal.
type LinkOpener interface {
	Open(link string) error
}

// LinkOpenerFunc adapts a function to LinkOpener.
type LinkOpenerFunc func(link string) error

func (f LinkOpenerFunc) Open(link string) error { return f(link) }

// OrderMessage is the prefilled chat text for a product enquiry.
func OrderMessage(product string) string {
	return "Bhai, I want to order this product: " + product
}

// WhatsAppLink builds a wa.me deep link to number with text prefilled.
func WhatsAppLink(number, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	// wa.me expects %20, not the + that QueryEscape produces for spaces.
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
