package main

import (
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"github.com/spf13/cobra"
)

var (
	sendTo      string
	sendMessage string
	sendVoice   bool
)

var sendTestCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Send one SMS or call through the configured provider",
	RunE:  runSendTest,
}

func init() {
	sendTestCmd.Flags().StringVar(&sendTo, "to", "", "recipient phone number")
	sendTestCmd.Flags().StringVar(&sendMessage, "message", "", "message body or call script text")
	sendTestCmd.Flags().BoolVar(&sendVoice, "voice", false, "place a call instead of sending an SMS")
	_ = sendTestCmd.MarkFlagRequired("to")
	_ = sendTestCmd.MarkFlagRequired("message")
}

func runSendTest(cmd *cobra.Command, _ []string) error {
	to, err := driver.NormalizePhone(sendTo)
	if err != nil {
		return err
	}

	sender := provider.New()

	var sent *provider.SendResult

	if sendVoice {
		script, scriptErr := provider.VoiceScript(sendMessage, provider.DefaultScriptOptions())
		if scriptErr != nil {
			return scriptErr
		}

		sent, err = sender.PlaceCall(cmd.Context(), to, script)
	} else {
		sent, err = sender.SendMessage(cmd.Context(), to, sendMessage)
	}

	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "sid=%s status=%s simulated=%t\n", sent.ProviderID, sent.Status, sent.Simulated)

	return err
}
