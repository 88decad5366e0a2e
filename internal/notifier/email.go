package notifier

import (
	"fmt"
	"html"

	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/mailer"
)

// renderEmail builds the type-specific email payload for one notification.
// Unknown types fall back to the announcement template.
func renderEmail(user db.User, arg DispatchParams) mailer.EmailPayload {
	actor := "Someone"
	family := "your family circle"
	if arg.Email != nil {
		if arg.Email.ActorName != "" {
			actor = arg.Email.ActorName
		}
		if arg.Email.FamilyName != "" {
			family = arg.Email.FamilyName
		}
	}

	var subject, intro string
	switch arg.Type {
	case db.NotificationTypeMessage:
		subject = fmt.Sprintf("New message from %s", actor)
		intro = fmt.Sprintf("%s sent you a message in %s.", actor, family)
	case db.NotificationTypeCareUpdate:
		subject = fmt.Sprintf("Care update in %s", family)
		intro = fmt.Sprintf("%s posted a care update.", actor)
	case db.NotificationTypeEmergencyAlert:
		subject = fmt.Sprintf("EMERGENCY: %s", arg.Title)
		intro = fmt.Sprintf("An emergency alert was raised in %s. Please check in as soon as you can.", family)
	case db.NotificationTypeFamilyActivity:
		subject = fmt.Sprintf("Activity in %s", family)
		intro = fmt.Sprintf("%s shared new activity with %s.", actor, family)
	default:
		// system_announcement and anything newer
		subject = arg.Title
		intro = "There is a new announcement for you on Firefly."
	}

	textBody := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n%s\n", user.FullName, intro, arg.Title, arg.Message)

	// Titles, messages and actor names are user-authored; escape them
	// before they land in markup.
	htmlBody := fmt.Sprintf(`<p>Hi %s,</p>
<p>%s</p>
<h3>%s</h3>
<p>%s</p>
<p>— The Firefly team</p>`,
		html.EscapeString(user.FullName), html.EscapeString(intro),
		html.EscapeString(arg.Title), html.EscapeString(arg.Message))

	return mailer.EmailPayload{
		To:       user.Email,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}
}
