package transcript

import (
	"fmt"

	"github.com/harunnryd/roundtable/pkg/llm"
)

type Role string

const (
	RoleSystem    Role = llm.RoleSystem
	RoleUser      Role = llm.RoleUser
	RoleAssistant Role = llm.RoleAssistant
)

// Message is one stored transcript entry; its JSON form is the backup format.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func NewMessage(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// Utterance is what a participant said during one turn.
type Utterance struct {
	Speaker string
	Text    string
	Role    Role
}

// AsOwn is the entry the speaker keeps in its own transcript.
func (u Utterance) AsOwn() Message {
	return NewMessage(RoleAssistant, u.Text)
}

// AsHeard is the entry every other participant receives, tagged with the speaker.
func (u Utterance) AsHeard() Message {
	return NewMessage(RoleUser, fmt.Sprintf("[%s] %s", u.Speaker, u.Text))
}
