package telephony

// Action identifies one step in a voice instruction.
type Action string

// Instruction actions consumed by the telephony platform.
const (
	ActionSay      Action = "say"      // speak text to the conference
	ActionListen   Action = "listen"   // capture the next utterance
	ActionRedirect Action = "redirect" // continue the loop at another endpoint
	ActionHangup   Action = "hangup"   // end the call leg
)

// Step is one element of a voice instruction.
type Step struct {
	Action Action `json:"action"`
	Text   string `json:"text,omitempty"` // spoken text for "say"
	URL    string `json:"url,omitempty"`  // target for "listen" and "redirect"
}

// Instruction is the ordered response the platform executes for one
// callback. Every webhook must produce one: a missing response stalls the
// call indefinitely.
type Instruction struct {
	Steps []Step `json:"steps"`
}

// Say appends a spoken-text step.
func (in Instruction) Say(text string) Instruction {
	in.Steps = append(in.Steps, Step{Action: ActionSay, Text: text})
	return in
}

// Listen appends a speech-capture step posting results to url.
func (in Instruction) Listen(url string) Instruction {
	in.Steps = append(in.Steps, Step{Action: ActionListen, URL: url})
	return in
}

// Redirect appends a redirect step.
func (in Instruction) Redirect(url string) Instruction {
	in.Steps = append(in.Steps, Step{Action: ActionRedirect, URL: url})
	return in
}

// Hangup appends a hangup step.
func (in Instruction) Hangup() Instruction {
	in.Steps = append(in.Steps, Step{Action: ActionHangup})
	return in
}

// HasAction reports whether any step carries the given action.
func (in Instruction) HasAction(a Action) bool {
	for _, s := range in.Steps {
		if s.Action == a {
			return true
		}
	}
	return false
}
