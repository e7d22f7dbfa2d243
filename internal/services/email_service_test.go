package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
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

func TestRenderResetMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	html, text, err := renderResetMessage("https://app.example.com/", "a+b/c", now.Add(59*time.Minute+10*time.Second), now)
	require.NoError(t, err)

	assert.Contains(t, text, "https://app.example.com/reset-password?token=a%2Bb%2Fc")
	assert.Contains(t, text, "expires in 60 minutes")
	assert.Contains(t, html, "reset-password?token=a%2Bb%2Fc")
}

func TestRenderResetMessage_ExpiredLinkStillSaysOneMinute(t *testing.T) {
	now := time.Now()
	_, text, err := renderResetMessage("https://x", "t", now.Add(-time.Minute), now)
	require.NoError(t, err)
	assert.Contains(t, text, "expires in 1 minutes")
}

func TestAWSSESEmailService_SendPasswordResetEmail(t *testing.T) {
	fake := &fakeSES{}
	svc := &AWSSESEmailService{client: fake, fromAddress: "noreply@example.com", baseURL: "https://app", logger: NewTestLogger()}

	err := svc.SendPasswordResetEmail(context.Background(), "user@example.com", "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, fake.input)
	assert.Equal(t, "noreply@example.com", aws.ToString(fake.input.Source))
	assert.Equal(t, []string{"user@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, resetSubject, aws.ToString(fake.input.Message.Subject.Data))
	assert.True(t, strings.Contains(aws.ToString(fake.input.Message.Body.Text.Data), "token=tok"))

	fake.err = errors.New("throttled")
	err = svc.SendPasswordResetEmail(context.Background(), "user@example.com", "tok", time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "failed to send email")
}
