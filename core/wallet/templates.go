package wallet

import (
	"strings"
	"text/template"
)

var (
	seedTmpl = template.Must(template.New("seed").Parse(
		"**Your wallet has been created.**\n\n" +
			"Write down your recovery phrase and keep it somewhere safe. " +
			"Anyone who has it can spend your grin.\n" +
			"```\n{{.Seed}}\n```"))

	sendTmpl = template.Must(template.New("send").Parse(
		"**Sent {{.Amount}} grin**\n\n" +
			"Fee: {{.Fee}} grin\n" +
			"Block height: {{.Height}}\n" +
			"Transaction id: {{.ID}}"))

	balanceTmpl = template.Must(template.New("balance").Parse(
		"**Wallet balance**\n\n" +
			"Total: {{.Total}}\n" +
			"Awaiting confirmation: {{.AwaitingConfirmation}}\n" +
			"Awaiting finalization: {{.AwaitingFinalization}}\n" +
			"Immature: {{.Immature}}\n" +
			"Locked: {{.Locked}}\n" +
			"Currently spendable: {{.Spendable}}\n\n" +
			"_Confirmed height {{.Height}}, {{.MinConfirmations}} confirmations required_"))
)

type sendView struct {
	Amount, Fee, Height, ID string
}

// Info is the wallet summary with amounts converted to whole grin.
type Info struct {
	Height               string
	MinConfirmations     string
	Total                string
	AwaitingConfirmation string
	AwaitingFinalization string
	Immature             string
	Locked               string
	Spendable            string
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
