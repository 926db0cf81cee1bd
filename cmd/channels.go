package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dsrosen/cfrm-console/internal/cfrm"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	channelIn     cfrm.ChannelInput
	channelType   string
	channelConfig string

	smsSid      string
	smsStatus   string
	waFrom      string
	waBody      string
	webhookJSON string
)

var channelsCmd = &cobra.Command{
	Use:               "channels",
	Aliases:           []string{"ch"},
	Short:             "Manage channel configurations",
	PersistentPreRunE: authedPreRun,
}

var channelsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		chs, err := client.ListChannelConfigs(ctx)
		if err != nil {
			return err
		}

		v := view{value: chs, headers: []string{"ID", "NAME", "TYPE", "ACTIVE", "DESCRIPTION"}}
		for _, ch := range chs {
			v.rows = append(v.rows, []string{
				ch.Id.String(), ch.Name, string(ch.Type), strconv.FormatBool(ch.IsActive), truncate(ch.Description, 50),
			})
		}
		return render(cmd.OutOrStdout(), v)
	},
}

var channelsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a channel configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := channelInput()
		if err != nil {
			return err
		}

		ch, err := client.CreateChannelConfig(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("CREATED", fmt.Sprintf("%s (%s)", ch.Name, ch.Id)))
		return nil
	},
}

var channelsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Replace a channel configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := channelInput()
		if err != nil {
			return err
		}

		ch, err := client.UpdateChannelConfig(ctx, args[0], in)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("SAVED", fmt.Sprintf("%s (%s)", ch.Name, ch.Id)))
		return nil
	},
}

var channelsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a channel configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteChannelConfig(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("DELETED", args[0]))
		return nil
	},
}

var webhooksCmd = &cobra.Command{
	Use:         "webhook sms|whatsapp",
	Short:       "Send a test provider callback to the webhook endpoints",
	Args:        cobra.ExactArgs(1),
	ValidArgs:   []string{string(cfrm.WebhookSMS), string(cfrm.WebhookWhatsApp)},
	Annotations: map[string]string{authAnnotation: authNone},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := cfrm.WebhookKind(args[0])

		payload, err := webhookPayload(kind)
		if err != nil {
			return err
		}

		res, err := client.SendWebhook(ctx, kind, payload)
		if err != nil {
			return err
		}

		if output != "table" {
			return render(cmd.OutOrStdout(), view{value: res})
		}
		fmt.Fprintln(cmd.OutOrStdout(), goodGreenOutput("ACCEPTED", fmt.Sprintf("status %s, event %s", res.Status, res.EventId)))
		return nil
	},
}

func channelInput() (cfrm.ChannelInput, error) {
	in := channelIn
	in.Type = cfrm.ChannelType(strings.ToLower(channelType))

	if channelConfig != "" {
		if err := json.Unmarshal([]byte(channelConfig), &in.Configuration); err != nil {
			return in, fmt.Errorf("parsing --config-json: %w", err)
		}
	}
	return in, nil
}

func webhookPayload(kind cfrm.WebhookKind) (map[string]any, error) {
	if webhookJSON != "" {
		var p map[string]any
		if err := json.Unmarshal([]byte(webhookJSON), &p); err != nil {
			return nil, fmt.Errorf("parsing --payload: %w", err)
		}
		return p, nil
	}

	switch kind {
	case cfrm.WebhookSMS:
		sid := smsSid
		if sid == "" {
			sid = "SM" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		return cfrm.SMSStatusPayload(sid, smsStatus), nil
	case cfrm.WebhookWhatsApp:
		return cfrm.WhatsAppMessagePayload(waFrom, waBody), nil
	}
	return nil, fmt.Errorf("unsupported webhook kind %q", kind)
}

func init() {
	for _, c := range []*cobra.Command{channelsCreateCmd, channelsUpdateCmd} {
		f := c.Flags()
		f.StringVar(&channelIn.Name, "name", "", "display name (required)")
		f.StringVar(&channelType, "type", "", "sms, whatsapp, email or web (required)")
		f.StringVar(&channelIn.Description, "description", "", "free-text description")
		f.BoolVar(&channelIn.IsActive, "active", true, "accept traffic on this channel")
		f.StringVar(&channelConfig, "config-json", "", `provider settings as a JSON object, e.g. '{"sender":"CFRM"}'`)
	}

	wf := webhooksCmd.Flags()
	wf.StringVar(&smsSid, "sid", "", "sms: message sid (random when empty)")
	wf.StringVar(&smsStatus, "status", "delivered", "sms: delivery status")
	wf.StringVar(&waFrom, "from", "+221770000000", "whatsapp: sender number")
	wf.StringVar(&waBody, "body", "Test message", "whatsapp: message text")
	wf.StringVar(&webhookJSON, "payload", "", "raw JSON payload, overrides the other flags")

	channelsCmd.AddCommand(channelsListCmd, channelsCreateCmd, channelsUpdateCmd, channelsDeleteCmd, webhooksCmd)
	rootCmd.AddCommand(channelsCmd)
}
