package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

// libraryVersion marks the shipped global template set. Bump when the
// built-in library changes so existing deployments reseed on upgrade.
const (
	libraryVersionKey = "template_library_version"
	libraryVersion    = "v1"
)

// builtinTemplates is the global library every firm can read.
var builtinTemplates = []models.Template{
	{
		TemplateID: "global-personal-injury",
		Name:       "Personal injury demand",
		MatterType: models.MatterPersonalInjury,
		Tags:       []string{"injury", "accident", "collision", "medical"},
		Body: `{{date}}

{{recipient_name}}
{{recipient_company}}
{{recipient_address}}

RE: Demand for compensation arising from injuries sustained on {{incident_date}}

Dear {{recipient_name}},

This firm represents {{claimant}} in connection with the injuries sustained on {{incident_date}}. {{summary}}

Our client demands payment of {{demand_amount}} within {{deadline}}. Absent timely payment we are instructed to pursue all available remedies without further notice.

Sincerely,
{{firm_name}}`,
	},
	{
		TemplateID: "global-property-damage",
		Name:       "Property damage demand",
		MatterType: models.MatterPropertyDamage,
		Tags:       []string{"property", "damage", "repair"},
		Body: `{{date}}

{{recipient_name}}
{{recipient_address}}

RE: Demand for property damage compensation

Dear {{recipient_name}},

We represent {{claimant}} regarding damage to their property caused on {{incident_date}}. {{summary}}

Demand is hereby made for {{demand_amount}} to cover repair and associated costs, payable by {{deadline}}.

Sincerely,
{{firm_name}}`,
	},
	{
		TemplateID: "global-contract-breach",
		Name:       "Breach of contract demand",
		MatterType: models.MatterContractBreach,
		Tags:       []string{"contract", "breach", "agreement"},
		Body: `{{date}}

{{recipient_name}}
{{recipient_company}}

RE: Breach of contract - formal demand

Dear {{recipient_name}},

This letter concerns your failure to perform under the agreement with {{claimant}}. {{summary}}

Demand is made for {{demand_amount}} or full performance by {{deadline}}, failing which our client will pursue legal action for damages.

Sincerely,
{{firm_name}}`,
	},
	{
		TemplateID: "global-unpaid-invoice",
		Name:       "Unpaid invoice demand",
		MatterType: models.MatterUnpaidInvoice,
		Tags:       []string{"invoice", "payment", "overdue", "debt"},
		Body: `{{date}}

{{recipient_name}}
{{recipient_company}}

RE: Outstanding invoice - final demand before action

Dear {{recipient_name}},

Despite prior reminders, the amount of {{demand_amount}} owed to {{claimant}} remains unpaid. {{summary}}

Payment in full is required by {{deadline}}. If payment is not received, recovery proceedings will commence without further notice and interest and costs will be claimed.

Sincerely,
{{firm_name}}`,
	},
}

// Seed installs the built-in global template library. A system KV entry
// records the installed version so the seed runs once per version.
func Seed(ctx context.Context, accounts interfaces.AccountStore, store interfaces.TemplateStore, logger *common.Logger) error {
	current, err := accounts.GetSystemKV(ctx, libraryVersionKey)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("failed to read template library version: %w", err)
	}
	if current == libraryVersion {
		return nil
	}

	now := time.Now()
	for i := range builtinTemplates {
		tmpl := builtinTemplates[i]
		tmpl.CreatedAt = now
		tmpl.ModifiedAt = now
		if err := store.Save(ctx, &tmpl); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", tmpl.TemplateID, err)
		}
	}

	if err := accounts.SetSystemKV(ctx, libraryVersionKey, libraryVersion); err != nil {
		return fmt.Errorf("failed to record template library version: %w", err)
	}

	logger.Info().Int("templates", len(builtinTemplates)).Str("version", libraryVersion).Msg("Global template library seeded")
	return nil
}
