package cli

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodscope/prodscope/internal/client"
	"github.com/prodscope/prodscope/internal/conversation"
	"github.com/prodscope/prodscope/internal/sim"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to the analyst and print the reply",
	Long: `Send a single chat message and print the assistant's answer with its
provider and data-source attribution.

Examples:
  prodscope chat "what are the top trends for yoga mats?"
  prodscope chat --live "which weaknesses show up in reviews?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")

	var deliverer conversation.Deliverer
	if cfg.Simulate {
		deliverer = sim.NewDeliverer(0, rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		deliverer = client.New(cfg.APIURL, cfg.UserID)
	}

	controller := conversation.NewController(conversation.NewLedger(nil), deliverer, logger)
	if err := controller.Send(context.Background(), text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	msgs := controller.Ledger().Messages()
	reply := msgs[len(msgs)-1]

	if reply.Delivery == conversation.DeliveryError {
		return fmt.Errorf("%s", reply.Content)
	}

	fmt.Println(reply.Content)
	if reply.Meta != nil {
		fmt.Printf("\n[%s · %.1fs · %s]\n",
			reply.Meta.Provider,
			float64(reply.Meta.ProcessingTimeMs)/1000,
			strings.Join(reply.Meta.DataSourcesUsed, ", "))
	}
	return nil
}
