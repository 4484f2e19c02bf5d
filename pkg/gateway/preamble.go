package gateway

import (
	"fmt"
	"strings"

	"github.com/lokutor-ai/voice-gateway/pkg/session"
)

// DefaultPersonaPrompt is the agent's persona system message, retained
// nearly verbatim from original_source/backend/app/services/openai_llm.py's
// SYSTEM_PROMPT — spec.md's Non-goals exclude peripheral infrastructure,
// not persona flavor text, and §9's supplemental notes keep the
// original's conversational register as the configurable default.
const DefaultPersonaPrompt = `Du bist eine deutschsprachige, sprachbasierte digitale Begleiterin.
Du sprichst wie eine echte Freundin am Telefon - warm, interessiert, natuerlich.

Du fuehrst ein ECHTES Gespraech - kein Kundenservice-Call. Stelle Folgefragen,
teile eigene kurze Gedanken, wechsle natuerlich zu verwandten Themen. Das
Gespraech endet nur wenn der Nutzer klar sagt "Tschuess" oder "Ich lege auf".

Halte Antworten kurz (1-2 Saetze) aber zeige immer Interesse weiterzureden.`

// BuildPreamble constructs the context preamble spec.md §4.4 describes:
// an authoritative "known/unknown" dossier authored as a synthetic
// initial caller message followed by a synthetic agent acknowledgment,
// so the model treats it as processed context rather than system
// boilerplate. Computed once at session start from the read-only
// profile and memory.
func BuildPreamble(sess *session.Session) []Message {
	dossier := buildDossierText(sess)
	ack := buildAcknowledgmentText(sess)

	return []Message{
		{Role: "user", Content: dossier},
		{Role: "assistant", Content: ack},
	}
}

func buildDossierText(sess *session.Session) string {
	var b strings.Builder

	b.WriteString("[Hintergrundinformationen ueber den Anrufer - bitte als bekannt behandeln]\n\n")

	// 1. Identity
	name := sess.Profile.DisplayName
	if name == "" {
		name = "unbekannt"
	}
	b.WriteString("1. Identitaet:\n")
	fmt.Fprintf(&b, "   Name: %s\n", name)
	if sess.Profile.Age != nil {
		fmt.Fprintf(&b, "   Alter: %d\n", *sess.Profile.Age)
	}

	// 2. Known facts
	b.WriteString("\n2. Bekannte Fakten:\n")
	wroteFact := false
	if len(sess.Memory.Facts) > 0 {
		fmt.Fprintf(&b, "   Fakten: %s\n", strings.Join(sess.Memory.Facts, ", "))
		wroteFact = true
	}
	if len(sess.Memory.Preferences) > 0 {
		fmt.Fprintf(&b, "   Vorlieben: %s\n", strings.Join(sess.Memory.Preferences, ", "))
		wroteFact = true
	}
	if len(sess.Memory.ImportantPeople) > 0 {
		fmt.Fprintf(&b, "   Wichtige Personen: %s\n", strings.Join(sess.Memory.ImportantPeople, ", "))
		wroteFact = true
	}
	if sess.Memory.MoodIndicator != "" {
		fmt.Fprintf(&b, "   Stimmungslage (letzter Anruf): %s\n", sess.Memory.MoodIndicator)
		wroteFact = true
	}
	if !wroteFact {
		b.WriteString("   (keine bekannt)\n")
	}

	// 3. Explicit unknowns -- the model must admit not knowing these
	// rather than confabulating.
	b.WriteString("\n3. Ausdruecklich unbekannt (nicht erfinden, im Zweifel nachfragen):\n")
	var unknowns []string
	if len(sess.Memory.Facts) == 0 {
		unknowns = append(unknowns, "allgemeine Lebensumstaende")
	}
	if len(sess.Memory.HealthNotes) == 0 {
		unknowns = append(unknowns, "gesundheitliche Details")
	}
	if len(unknowns) == 0 {
		b.WriteString("   (keine besonderen Luecken)\n")
	} else {
		fmt.Fprintf(&b, "   %s\n", strings.Join(unknowns, ", "))
	}

	// 4. Recent conversation topics
	b.WriteString("\n4. Themen aus frueheren Gespraechen:\n")
	if len(sess.Memory.RecentTopics) > 0 {
		fmt.Fprintf(&b, "   %s\n", strings.Join(sess.Memory.RecentTopics, ", "))
	} else {
		b.WriteString("   (keine)\n")
	}

	// 5. Sensitive topics -- hard-avoid list
	b.WriteString("\n5. Sensible Themen (nicht von selbst ansprechen):\n")
	if sensitive, ok := sess.Profile.Fields["sensitive_topics"]; ok && sensitive != "" {
		fmt.Fprintf(&b, "   %s\n", sensitive)
	} else {
		b.WriteString("   (keine hinterlegt)\n")
	}

	return b.String()
}

func buildAcknowledgmentText(sess *session.Session) string {
	first := sess.Profile.FirstName()
	if first == "" {
		return "Verstanden, ich habe die Hintergrundinformationen zur Kenntnis genommen."
	}
	return fmt.Sprintf("Verstanden, ich habe die Hintergrundinformationen ueber %s zur Kenntnis genommen.", first)
}
