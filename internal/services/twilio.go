package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Ananth-NQI/convo-followups/internal/config"
	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// ConversationLookup resolves a conversation to its channel contact
type ConversationLookup interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
}

// TwilioService delivers follow-ups over WhatsApp through Twilio
type TwilioService struct {
	client        *twilio.RestClient
	from          string
	conversations ConversationLookup
}

var _ Dispatcher = (*TwilioService)(nil)

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg config.TwilioConfig, conversations ConversationLookup) (*TwilioService, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioService{
		client:        client,
		from:          cfg.WhatsAppFrom,
		conversations: conversations,
	}, nil
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio
func (t *TwilioService) SendWhatsAppMessage(to string, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(WhatsAppAddress(to))
	params.SetBody(message)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	if resp.Sid != nil {
		log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	}
	return nil
}

// Send delivers text to the conversation's contact. The Twilio client has no
// context support, so a cancelled ctx abandons the call rather than aborting it.
func (t *TwilioService) Send(ctx context.Context, conversationID, text string) error {
	conv, err := t.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}
	if conv.Contact == "" {
		return fmt.Errorf("conversation %s has no contact", conversationID)
	}

	done := make(chan error, 1)
	go func() {
		done <- t.SendWhatsAppMessage(conv.Contact, text)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send to %s: %w", conversationID, ctx.Err())
	}
}

// WhatsAppAddress adds the whatsapp: scheme Twilio expects
func WhatsAppAddress(contact string) string {
	if strings.HasPrefix(contact, "whatsapp:") {
		return contact
	}
	return "whatsapp:" + contact
}

// StripWhatsAppPrefix removes the whatsapp: scheme from a Twilio address
func StripWhatsAppPrefix(addr string) string {
	return strings.TrimPrefix(addr, "whatsapp:")
}
