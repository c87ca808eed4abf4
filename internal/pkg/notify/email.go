package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/mail"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/gofiber/template/html/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders a named template.
type Renderer interface {
	Render(out io.Writer, name string, binding interface{}, layout ...string) error
}

// NewTemplates loads the embedded email templates.
func NewTemplates() (*html.Engine, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return engine, nil
}

// emailData is the binding of every email template.
type emailData struct {
	Shop string
	*payments.Confirmation
	Upsale *payments.PurchasedUpsale
}

func render(views Renderer, name string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := views.Render(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Email sends the payment confirmation to the buyer.
type Email struct {
	mailer mail.Mailer
	views  Renderer
	shop   string
}

func NewEmail(mailer mail.Mailer, views Renderer) *Email {
	return &Email{mailer: mailer, views: views, shop: env.GetEnv("SHOP_NAME", "OproPay")}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Notify(ctx context.Context, c *payments.Confirmation) error {
	if c.Buyer.Email == "" {
		return errors.New("buyer has no email address")
	}

	name, subject := "session_confirmation", "Payment received: "+c.Title
	switch {
	case c.IsGift:
		name, subject = "gift_confirmation", "Your gift is paid: "+c.Title
	case c.Kind == payments.ShapeModule:
		name = "module_confirmation"
	}

	body, err := render(e.views, name, emailData{Shop: e.shop, Confirmation: c})
	if err != nil {
		return err
	}
	return e.mailer.Send([]string{c.Buyer.Email}, subject, body)
}

// StaffEmail tells the people responsible for an upsale who bought it.
type StaffEmail struct {
	mailer mail.Mailer
	views  Renderer
	shop   string
}

func NewStaffEmail(mailer mail.Mailer, views Renderer) *StaffEmail {
	return &StaffEmail{mailer: mailer, views: views, shop: env.GetEnv("SHOP_NAME", "OproPay")}
}

func (e *StaffEmail) Name() string { return "upsale_staff" }

func (e *StaffEmail) Notify(ctx context.Context, c *payments.Confirmation) error {
	var errs []error
	for i := range c.Upsales {
		u := &c.Upsales[i]
		if len(u.Emails) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := render(e.views, "upsale_staff", emailData{Shop: e.shop, Confirmation: c, Upsale: u})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.mailer.Send(u.Emails, "New purchase: "+u.Title, body); err != nil {
			errs = append(errs, fmt.Errorf("upsale link %d: %w", u.LinkID, err))
		}
	}
	return errors.Join(errs...)
}
