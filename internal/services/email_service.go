package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"math"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/lockbox/pkg/logger"
)

// EmailService delivers the out-of-band password reset link
type EmailService interface {
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

const resetSubject = "Reset your password"

var resetHTML = htmltemplate.Must(htmltemplate.New("reset_html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>Reset your password</h1>
  <p>Your security answers were verified. Finish the reset here:</p>
  <p><a href="{{.Link}}">Reset password</a></p>
  <p>The link works once and expires in {{.Minutes}} minutes.</p>
  <p>If this was not you, someone knows your security answers. Change them after signing in.</p>
</body>
</html>`))

var resetText = texttemplate.Must(texttemplate.New("reset_text").Parse(`Reset your password

Your security answers were verified. Finish the reset here:

{{.Link}}

The link works once and expires in {{.Minutes}} minutes.

If this was not you, someone knows your security answers. Change them after signing in.
`))

type resetMessage struct {
	Link    string
	Minutes int
}

// renderResetMessage builds the HTML and plain-text bodies for a reset link
func renderResetMessage(baseURL, token string, expiresAt, now time.Time) (html, text string, err error) {
	msg := resetMessage{
		Link:    strings.TrimRight(baseURL, "/") + "/reset-password?token=" + url.QueryEscape(token),
		Minutes: int(math.Ceil(expiresAt.Sub(now).Minutes())),
	}
	if msg.Minutes < 1 {
		msg.Minutes = 1
	}

	var h, t bytes.Buffer
	if err := resetHTML.Execute(&h, msg); err != nil {
		return "", "", fmt.Errorf("failed to render reset email: %w", err)
	}
	if err := resetText.Execute(&t, msg); err != nil {
		return "", "", fmt.Errorf("failed to render reset email: %w", err)
	}
	return h.String(), t.String(), nil
}

// sesSender is the slice of the SES client the service uses
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends reset emails through AWS SES
type AWSSESEmailService struct {
	client      sesSender
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService loads the default AWS credential chain for region
func NewAWSSESEmailService(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendPasswordResetEmail sends the reset link; the token never reaches the logs
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	html, text, err := renderResetMessage(s.baseURL, token, expiresAt, time.Now())
	if err != nil {
		return err
	}

	result, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.fromAddress),
		Destination: &types.Destination{ToAddresses: []string{email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(resetSubject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService records reset dispatches in the log instead of sending them.
// Used when EMAIL_ENABLED is false.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.logger.InfoContext(ctx, "password reset email suppressed",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
