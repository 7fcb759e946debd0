package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/controlinterno/casos-api/internal/models"
	pkglogger "github.com/controlinterno/casos-api/pkg/logger"
)

// SESClient is the subset of the SES API used for notices
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier e-mails the account owner when their account gets locked
type SESLockoutNotifier struct {
	client      SESClient
	fromAddress string
	location    *time.Location
	logger      *slog.Logger
}

// NewSESLockoutNotifier loads the default AWS credentials chain for region
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESLockoutNotifierWithClient builds a notifier around an existing client
func NewSESLockoutNotifierWithClient(client SESClient, fromAddress string, logger *slog.Logger) *SESLockoutNotifier {
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		loc = time.UTC
	}
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: fromAddress,
		location:    loc,
		logger:      logger,
	}
}

// SendLockoutNotice implements LockoutNotifier
func (n *SESLockoutNotifier) SendLockoutNotice(ctx context.Context, state *models.LockoutState) error {
	if state == nil || state.LockoutExpiry == nil {
		return fmt.Errorf("lockout notice without expiry")
	}

	until := state.LockoutExpiry.In(n.location).Format("02-01-2006 15:04 MST")
	textBody := fmt.Sprintf(`Su cuenta ha sido bloqueada temporalmente

Registramos %d intentos fallidos de inicio de sesión consecutivos.
Por seguridad, la cuenta permanecerá bloqueada hasta el %s.

Si no reconoce estos intentos, contacte al administrador del sistema.

Este es un mensaje automático. Por favor no responda este correo.
`, state.FailedAttempts, until)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Su cuenta ha sido bloqueada temporalmente</h2>
  <p>Registramos <strong>%d</strong> intentos fallidos de inicio de sesión consecutivos.</p>
  <p>Por seguridad, la cuenta permanecerá bloqueada hasta el <strong>%s</strong>.</p>
  <p>Si no reconoce estos intentos, contacte al administrador del sistema.</p>
  <p style="color: #666; font-size: 12px;">Este es un mensaje automático. Por favor no responda este correo.</p>
</body>
</html>
`, state.FailedAttempts, until)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{state.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Cuenta bloqueada temporalmente"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout notice: %w", err)
	}

	n.logger.Info("lockout notice sent",
		slog.Int64("account_id", state.AccountID),
		slog.String("email", pkglogger.SanitizedEmail(state.Email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
