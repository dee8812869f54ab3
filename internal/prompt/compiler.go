// Package prompt compiles an agent's persona, behavior rules and extracted
// knowledge into the single system prompt consumed by the conversation engine.
package prompt

import (
	"fmt"
	"strings"

	"github.com/atendai/atenda/internal/storage"
)

const (
	// MaxPromptChars is the hard cap on a compiled prompt. The dashboard
	// shows training usage against this same number.
	MaxPromptChars = 10000

	// minUsefulItemChars is the smallest truncated knowledge block worth
	// keeping; anything shorter is omitted entirely.
	minUsefulItemChars = 200

	truncationMarker = "\n[conteúdo truncado]"

	sectionSeparator = "\n\n"
)

// Result is the output of one compilation.
type Result struct {
	// Prompt is the compiled system prompt, never longer than MaxPromptChars.
	Prompt string

	// TotalChars is the sum of the done items' char counts before any
	// truncation. It measures available knowledge, not what fit in the
	// prompt.
	TotalChars int
}

// Compile assembles the system prompt from the agent's configuration and its
// successfully extracted training items, in the order given (creation order).
// It is deterministic and side-effect-free: identical input produces
// byte-identical output.
func Compile(agent storage.Agent, doneItems []storage.TrainingItem) Result {
	sections := []string{
		opening(agent),
	}

	if agent.CompanyDescription != "" {
		sections = append(sections, "## Sobre a empresa\n"+agent.CompanyDescription)
	}

	sections = append(sections, behaviorRules(agent))

	total := 0
	for _, item := range doneItems {
		total += item.CharCount
	}

	if len(doneItems) > 0 {
		sections = appendKnowledge(sections, doneItems)
	}

	return Result{
		Prompt:     strings.Join(sections, sectionSeparator),
		TotalChars: total,
	}
}

func opening(agent storage.Agent) string {
	return fmt.Sprintf("Você é %s, um assistente virtual de WhatsApp especializado em %s.",
		agent.Name, objectivePhrase(agent.Objective))
}

func objectivePhrase(objective string) string {
	switch objective {
	case storage.ObjectiveSales:
		return "vendas e negociação"
	case storage.ObjectivePersonal:
		return "uso pessoal"
	default:
		return "suporte e atendimento ao cliente"
	}
}

// behaviorRules emits one line per enabled flag in a fixed order. The emoji
// rule is always present in exactly one of its two forms; the two closing
// rules are unconditional.
func behaviorRules(agent storage.Agent) string {
	var b strings.Builder
	b.WriteString("## Regras de comportamento")

	if agent.UseEmojis {
		b.WriteString("\n- Use emojis com moderação para deixar a conversa mais leve.")
	} else {
		b.WriteString("\n- Não use emojis nas respostas.")
	}
	if agent.RestrictTopics {
		b.WriteString("\n- Responda apenas sobre assuntos relacionados à empresa e seus produtos; recuse outros temas com educação.")
	}
	if agent.SignAgentName {
		b.WriteString(fmt.Sprintf("\n- Assine as mensagens com o nome %s.", agent.Name))
	}
	if agent.TransferToHuman {
		b.WriteString("\n- Ofereça transferir a conversa para um atendente humano quando o cliente pedir ou quando não souber responder.")
	}
	if agent.SplitResponses {
		b.WriteString("\n- Divida respostas longas em mensagens curtas.")
	}
	b.WriteString("\n- Responda sempre em português brasileiro.")
	b.WriteString("\n- Seja educado, profissional e conciso.")

	return b.String()
}

// appendKnowledge adds the knowledge-base header and item subsections,
// enforcing the prompt budget. When an item's full block would overflow the
// cap, its content is truncated to the remaining room (keeping the marker
// and header inside the cap) and iteration stops; if the truncated remainder
// would be too small to be meaningful, the item is omitted and iteration
// stops anyway.
func appendKnowledge(sections []string, items []storage.TrainingItem) []string {
	sections = append(sections, "## Base de conhecimento")
	used := joinedLen(sections)

	for _, item := range items {
		header := itemHeader(item)
		needed := len(sectionSeparator) + len(header) + len(item.ExtractedContent)

		if used+needed <= MaxPromptChars {
			sections = append(sections, header+item.ExtractedContent)
			used += needed
			continue
		}

		room := MaxPromptChars - used - len(sectionSeparator) - len(header) - len(truncationMarker)
		if room < minUsefulItemChars {
			break
		}
		truncated := truncateUTF8(item.ExtractedContent, room)
		sections = append(sections, header+truncated+truncationMarker)
		break
	}

	return sections
}

func itemHeader(item storage.TrainingItem) string {
	title := item.Title
	if title == "" {
		title = typeLabel(item.Type)
	}
	return fmt.Sprintf("### %s (%s)\n", title, typeLabel(item.Type))
}

func typeLabel(itemType string) string {
	switch itemType {
	case storage.ItemTypeText:
		return "Texto"
	case storage.ItemTypeWebsite:
		return "Website"
	case storage.ItemTypeVideo:
		return "Vídeo"
	case storage.ItemTypeDocument:
		return "Documento"
	default:
		return itemType
	}
}

func joinedLen(sections []string) int {
	n := 0
	for _, s := range sections {
		n += len(s)
	}
	if len(sections) > 1 {
		n += len(sectionSeparator) * (len(sections) - 1)
	}
	return n
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
