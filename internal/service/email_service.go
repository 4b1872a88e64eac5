package service

import (
	"context"
	"fmt"
	"html"

	"familypoints/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	log "github.com/sirupsen/logrus"
)

// sesSender is the part of the SES client the email service calls
type sesSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesSender
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
}

// NewEmailService creates a new email service. An empty fromEmail yields a disabled service.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	if fromEmail == "" {
		log.Info("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, debug: debug}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.WithFields(log.Fields{"from": fromEmail, "region": awsRegion}).Info("Email service enabled")

	return &EmailService{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		debug:      debug,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendWelcomeEmail greets a newly registered user
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if !s.enabled {
		log.WithField("to", toEmail).Debug("Skipping welcome email (service disabled)")
		return nil
	}

	subject := "Welcome to Family Points!"
	paragraphs := []string{
		"Thanks for signing up. Create a family or join one with the code an admin shares with you.",
		"Admins hand out tasks and rewards; everyone earns points by finishing tasks.",
	}
	htmlBody, textBody := s.render(toName, subject, paragraphs)
	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendNotificationEmail mirrors an in-app notification to the recipient's inbox
func (s *EmailService) SendNotificationEmail(ctx context.Context, toEmail, toName string, n *models.Notification) error {
	if !s.enabled {
		return nil
	}

	htmlBody, textBody := s.render(toName, n.Title, []string{n.Message})
	return s.sendEmail(ctx, toEmail, n.Title, htmlBody, textBody)
}

// render builds the HTML and plain-text bodies from the same paragraphs
func (s *EmailService) render(toName, heading string, paragraphs []string) (string, string) {
	var htmlParas, textParas string
	for _, p := range paragraphs {
		htmlParas += fmt.Sprintf("\t\t\t<p>%s</p>\n", html.EscapeString(p))
		textParas += p + "\n\n"
	}

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2e9d6a; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>%s</h1></div>
		<div class="content">
			<p>Hi %s,</p>
%s			<p><a href="%s">Open Family Points</a></p>
		</div>
		<div class="footer"><p>This is an automated email from Family Points. Please do not reply.</p></div>
	</div>
</body>
</html>
`, html.EscapeString(heading), html.EscapeString(toName), htmlParas, s.appBaseURL)

	textBody := fmt.Sprintf("Hi %s,\n\n%sOpen Family Points: %s\n\n---\nThis is an automated email from Family Points. Please do not reply.\n",
		toName, textParas, s.appBaseURL)

	return htmlBody, textBody
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := log.Fields{"to": toEmail, "subject": subject}
	if s.debug && result.MessageId != nil {
		fields["message_id"] = *result.MessageId
	}
	log.WithFields(fields).Info("Email sent")
	return nil
}

// NotificationMirror copies a stored notification to another channel
type NotificationMirror interface {
	Mirror(ctx context.Context, n *models.Notification) error
}

// EmailMirror sends each notification to the recipient's email address
type EmailMirror struct {
	email *EmailService
	users UserStore
}

// NewEmailMirror creates a mirror that looks recipients up in users
func NewEmailMirror(email *EmailService, users UserStore) *EmailMirror {
	return &EmailMirror{email: email, users: users}
}

func (m *EmailMirror) Mirror(ctx context.Context, n *models.Notification) error {
	if !m.email.IsEnabled() {
		return nil
	}
	user, err := m.users.GetUserByID(ctx, n.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("recipient %s: %w", n.UserID, ErrNotFound)
	}
	return m.email.SendNotificationEmail(ctx, user.Email, user.FullName, n)
}
