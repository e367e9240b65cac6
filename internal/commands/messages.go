package commands

import (
	"fmt"
	"time"
)

const (
	commandBonfire      = "bonfire"
	commandScarTheEmber = "scar_the_ember"
	commandScars        = "scars"

	optionTarget = "target"
	optionNote   = "note"

	slashCommandBonfireDescription = "Show the current bonfire dashboard link."
	slashCommandScarDescription    = "Record a note about a member."
	slashCommandScarsDescription   = "Get a short-lived link to the notes feed."
	optionTargetDescription        = "Member the note is about"
	optionNoteDescription          = "Note content"

	messageEphemeralWrongGuild     = ":warning: **This command is not available in this server.**"
	messageEphemeralUnknownCommand = ":warning: **Unknown command.**"
	messageEphemeralLinkMissing    = ":warning: **The dashboard link is not available right now.**"
	messageEphemeralNoteFailed     = ":warning: **The note could not be recorded.**"
	messageEphemeralNoteMissing    = ":warning: **Both a target member and a note are required.**"
	messageEphemeralNoteRecorded   = ":white_check_mark: **The note has been recorded.**"
	messageEphemeralNoViewAccess   = ":x: **You do not have access to the notes feed.**"

	messageBonfireLinkFormat     = ":fire: Bonfire dashboard: %s"
	messageDashboardDeniedFormat = ":x: **Only %s or above may use this command.**"
	messageNoteDeniedFormat      = ":x: **This oath is reserved for %s.**"

	messageNicknameChangeFormat = "[nick] %s → %s (%s)"
	messageDeniedAttemptFormat  = ":no_entry: /%s attempt denied\n\n" +
		"User: %s (ID: %s)\n" +
		"Input: /%s @%s %s\n" +
		"Time: %s (%s)\n" +
		"Reason: missing %s role"
)

func bonfireLink(url string) string {
	return fmt.Sprintf(messageBonfireLinkFormat, url)
}

func dashboardDenied(roleName string) string {
	return fmt.Sprintf(messageDashboardDeniedFormat, roleName)
}

func noteDenied(roleName string) string {
	return fmt.Sprintf(messageNoteDeniedFormat, roleName)
}

func nicknameChange(before, after, userID string) string {
	return fmt.Sprintf(messageNicknameChangeFormat, before, after, userID)
}

func deniedAttempt(userName, userID, targetName, note, roleName string, at time.Time) string {
	return fmt.Sprintf(messageDeniedAttemptFormat,
		commandScarTheEmber, userName, userID,
		commandScarTheEmber, targetName, note,
		at.Format(time.DateTime), at.Location().String(), roleName)
}
