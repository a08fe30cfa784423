package email

import (
	"fmt"

	"github.com/osteele/liquid"
)

const (
	// ConfirmationSubject is the subject line of the confirmation email.
	ConfirmationSubject = "Welcome! Please confirm your subscription"

	confirmationHTML = `<p>Welcome to our newsletter, {{ name | escape }}!</p>
<p>Click <a href="{{ confirmation_link | escape }}">here</a> to confirm your subscription.</p>`

	confirmationText = `Welcome to our newsletter, {{ name }}!
Visit {{ confirmation_link }} to confirm your subscription.`
)

// Renderer renders transactional email bodies from Liquid templates.
type Renderer struct {
	html *liquid.Template
	text *liquid.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()

	html, err := engine.ParseString(confirmationHTML)
	if err != nil {
		return nil, fmt.Errorf("parse confirmation html template: %w", err)
	}
	text, err := engine.ParseString(confirmationText)
	if err != nil {
		return nil, fmt.Errorf("parse confirmation text template: %w", err)
	}

	return &Renderer{html: html, text: text}, nil
}

// Confirmation renders the HTML and text bodies of a confirmation email.
func (r *Renderer) Confirmation(name, confirmationLink string) (htmlBody, textBody string, err error) {
	bindings := map[string]any{
		"name":              name,
		"confirmation_link": confirmationLink,
	}

	htmlBody, err = r.html.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render confirmation html: %w", err)
	}
	textBody, err = r.text.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render confirmation text: %w", err)
	}

	return htmlBody, textBody, nil
}
