package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/controlinterno/casos-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESLockoutNotifier_SendsNotice(t *testing.T) {
	client := &fakeSES{}
	notifier := NewSESLockoutNotifierWithClient(client, "no-responder@estudio.cl", discardLogger())
	until := time.Date(2026, 4, 1, 16, 30, 0, 0, time.UTC)

	err := notifier.SendLockoutNotice(context.Background(), &models.LockoutState{
		AccountID:      3,
		Email:          "jdoe@estudio.cl",
		FailedAttempts: 5,
		LockoutExpiry:  &until,
	})
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "no-responder@estudio.cl", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"jdoe@estudio.cl"}, client.input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "5 intentos fallidos")
}

func TestSESLockoutNotifier_Errors(t *testing.T) {
	client := &fakeSES{err: errors.New("MessageRejected")}
	notifier := NewSESLockoutNotifierWithClient(client, "no-responder@estudio.cl", discardLogger())

	assert.Error(t, notifier.SendLockoutNotice(context.Background(), &models.LockoutState{Email: "x@y.cl"}))

	until := time.Now()
	err := notifier.SendLockoutNotice(context.Background(), &models.LockoutState{Email: "x@y.cl", LockoutExpiry: &until})
	assert.ErrorContains(t, err, "MessageRejected")
}
