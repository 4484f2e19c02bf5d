package gateway

import (
	"fmt"
	"math/rand"

	"github.com/lokutor-ai/voice-gateway/pkg/session"
)

// DefaultAgentName is the spoken name the greeting templates introduce
// themselves with. Configurable rather than fixed to the original
// service's persona, per spec.md's treatment of persona flavor text as a
// default, not a fixed constant.
const DefaultAgentName = "Anna"

// namedGreetingTemplates and anonymousGreetingTemplates mirror
// realtime_gateway.py's send_initial_greeting greeting pools: several
// phrasings so repeat callers don't hear the identical opening line
// every time. "%s" is the agent name; the first-name variants also take
// the caller's first name ahead of the agent name.
var namedGreetingTemplates = []string{
	"Hallo %[2]s! Hier ist %[1]s. Schön, dass du anrufst. Wie geht's dir?",
	"Hey %[2]s! %[1]s hier. Na, wie läuft's bei dir?",
	"Hallo %[2]s! Hier ist %[1]s. Schön von dir zu hören. Was macht das Leben?",
	"Hi %[2]s! Hier ist %[1]s. Wie geht es dir heute?",
	"Hallo %[2]s! Freut mich, von dir zu hören. Alles gut bei dir?",
	"Na %[2]s! %[1]s am Apparat. Wie geht's, wie steht's?",
}

var anonymousGreetingTemplates = []string{
	"Hallo! Hier ist %[1]s. Schön, dass du anrufst. Wie geht's dir?",
	"Hey! %[1]s hier. Na, wie läuft's bei dir?",
	"Hallo! Hier ist %[1]s. Schön von dir zu hören. Was macht das Leben?",
	"Hi! Hier ist %[1]s. Wie geht es dir heute?",
}

// BuildGreeting picks one of the randomized greeting templates,
// personalized with the caller's first name when the profile has one,
// per the original's send_initial_greeting.
func BuildGreeting(agentName string, sess *session.Session) string {
	if agentName == "" {
		agentName = DefaultAgentName
	}
	firstName := sess.Profile.FirstName()
	if firstName == "" {
		tpl := anonymousGreetingTemplates[rand.Intn(len(anonymousGreetingTemplates))]
		return fmt.Sprintf(tpl, agentName)
	}
	tpl := namedGreetingTemplates[rand.Intn(len(namedGreetingTemplates))]
	return fmt.Sprintf(tpl, agentName, firstName)
}
