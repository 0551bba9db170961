package notify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/osteele/liquid"
)

// Template names.
const (
	TplClaimConfirmation = "claim_confirmation"
	TplAdminClaimCreated = "admin_claim_created"
	TplAdminClaimRemoved = "admin_claim_removed"
	TplDropOffReminder   = "dropoff_reminder"
)

type source struct{ subject, body string }

var builtin = map[string]source{
	TplClaimConfirmation: {
		subject: `Thank you for giving {{ gift_name }}`,
		body: `Hi {{ donor_name | default: "friend" }},

Thank you for claiming {{ quantity }} {{ quantity | pluralize: "item", "items" }} of "{{ gift_name }}" for {{ family_alias }}.
{% if campaign_name != "" %}
This gift is part of {{ campaign_name }}.
{% endif %}
Please keep this email.{% if claims_url %} Everything you have claimed is listed here:
{{ claims_url }}{% endif %}
`,
	},
	TplAdminClaimCreated: {
		subject: `[{{ family_alias }}] {{ gift_name }} claimed`,
		body: `{{ donor_name }} <{{ donor_email }}> claimed {{ quantity }} {{ quantity | pluralize: "unit", "units" }} of "{{ gift_name }}" for {{ family_alias }}.

Claim: {{ claim_id }}
Gift: {{ gift_id }}
Campaign: {{ campaign_id }}
`,
	},
	TplAdminClaimRemoved: {
		subject: `Claim removed: {{ quantity }} {{ quantity | pluralize: "unit", "units" }} back on the list`,
		body: `Claim {{ claim_id }} by {{ donor_name | default: "unknown donor" }} <{{ donor_email }}> was removed.
{{ quantity }} {{ quantity | pluralize: "unit", "units" }} of gift {{ gift_id }} are available again.
`,
	},
	TplDropOffReminder: {
		subject: `Reminder: {{ campaign_name }} gifts are due {{ deadline }}`,
		body: `Hi {{ donor_name | default: "friend" }},

Drop-off for {{ campaign_name | upcase }} closes {{ deadline }}.
{% if drop_off_address != "" %}Please bring your gifts to: {{ drop_off_address }}
{% endif %}
You claimed:
{% for item in items %}  - {{ item.quantity }} x {{ item.gift_name }} for {{ item.family_alias }}
{% endfor %}
Thank you for making the holidays brighter.
`,
	},
}

// Templates renders the built-in notification emails with liquid.
type Templates struct {
	engine *liquid.Engine
	parsed map[string][2]*liquid.Template
}

// NewTemplates parses the built-in templates. Overrides replace a built-in
// by name; unknown names are rejected.
func NewTemplates(overrides map[string][2]string) (*Templates, error) {
	engine := liquid.NewEngine()
	registerFilters(engine)

	srcs := make(map[string]source, len(builtin))
	for name, s := range builtin {
		srcs[name] = s
	}
	for name, o := range overrides {
		if _, ok := srcs[name]; !ok {
			return nil, fmt.Errorf("unknown template %q", name)
		}
		srcs[name] = source{subject: o[0], body: o[1]}
	}

	t := &Templates{engine: engine, parsed: make(map[string][2]*liquid.Template, len(srcs))}
	for name, s := range srcs {
		subj, err := engine.ParseString(s.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := engine.ParseString(s.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		t.parsed[name] = [2]*liquid.Template{subj, body}
	}
	return t, nil
}

// LoadTemplateDir reads overrides from dir. For each template name it looks
// for <name>.subject.liquid and <name>.body.liquid; a missing file keeps
// the built-in text for that part.
func LoadTemplateDir(dir string) (map[string][2]string, error) {
	out := make(map[string][2]string)
	for name, b := range builtin {
		pair := [2]string{b.subject, b.body}
		found := false
		for i, part := range []string{"subject", "body"} {
			data, err := os.ReadFile(filepath.Join(dir, name+"."+part+".liquid"))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read template %s %s: %w", name, part, err)
			}
			pair[i] = string(data)
			found = true
		}
		if found {
			out[name] = pair
		}
	}
	return out, nil
}

func registerFilters(engine *liquid.Engine) {
	// {{ donor_name | default: "friend" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ quantity | pluralize: "item", "items" }}
	engine.RegisterFilter("pluralize", func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	})
}

// Render produces the subject and body of template name.
func (t *Templates) Render(name string, data map[string]interface{}) (subject, body string, err error) {
	tpl, ok := t.parsed[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	subject, serr := tpl[0].RenderString(data)
	if serr != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, serr)
	}
	body, berr := tpl[1].RenderString(data)
	if berr != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, berr)
	}
	return strings.TrimSpace(subject), body, nil
}

const deadlineLayout = "Monday, January 2 at 3:04 PM"

// vars flattens an event into template bindings.
func vars(evt domain.ClaimEvent) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(evt.Items))
	for _, it := range evt.Items {
		items = append(items, map[string]interface{}{
			"gift_name":    it.GiftName,
			"quantity":     it.Quantity,
			"family_alias": it.FamilyAlias,
		})
	}
	deadline := "soon"
	if evt.DropOffDeadline != nil {
		deadline = evt.DropOffDeadline.Format(deadlineLayout)
	}
	return map[string]interface{}{
		"claim_id":         evt.ClaimID,
		"gift_id":          evt.GiftID,
		"gift_name":        evt.GiftName,
		"donor_name":       evt.DonorName,
		"donor_email":      evt.DonorEmail,
		"quantity":         evt.Quantity,
		"family_alias":     evt.FamilyAlias,
		"campaign_id":      evt.CampaignID,
		"campaign_name":    evt.CampaignName,
		"drop_off_address": evt.DropOffAddress,
		"deadline":         deadline,
		"items":            items,
	}
}
