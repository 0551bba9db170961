package notify

import (
	"context"

	"github.com/ignite/giftdrive/internal/pkg/donorlink"
)

// HandlerOptions configures BuildHandler.
type HandlerOptions struct {
	// TemplateDir holds optional template overrides; see LoadTemplateDir.
	TemplateDir string
	AdminEmail  string
	// UseSES sends through SES; otherwise mail is only logged.
	UseSES bool
	SES    SESConfig
	// Links adds a signed "your claims" link to donor confirmations.
	Links *donorlink.Signer
}

// BuildHandler wires templates and a mailer into a Handler.
func BuildHandler(ctx context.Context, opts HandlerOptions) (*Handler, error) {
	var overrides map[string][2]string
	if opts.TemplateDir != "" {
		var err error
		if overrides, err = LoadTemplateDir(opts.TemplateDir); err != nil {
			return nil, err
		}
	}
	tpl, err := NewTemplates(overrides)
	if err != nil {
		return nil, err
	}
	var mailer Mailer = LogMailer{}
	if opts.UseSES {
		ses, err := NewSESMailer(ctx, opts.SES)
		if err != nil {
			return nil, err
		}
		mailer = ses
	}
	h := NewHandler(tpl, mailer, opts.AdminEmail)
	h.SetClaimsLinks(opts.Links)
	return h, nil
}
