package interactive

import (
	"regexp"

	"github.com/m4xw311/steer/errors"
)

type Mode string

const (
	// ModeHuman executes commands typed by the operator.
	ModeHuman Mode = "human"
	// ModeConfirm asks before executing model commands that are not whitelisted.
	ModeConfirm Mode = "confirm"
	// ModeYolo executes model commands without asking.
	ModeYolo Mode = "yolo"
)

var modeTokens = map[string]Mode{
	"/u": ModeHuman,
	"/c": ModeConfirm,
	"/y": ModeYolo,
}

// ParseMode validates a mode name from configuration or flags.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeHuman, ModeConfirm, ModeYolo:
		return m, nil
	}
	return "", errors.New("invalid mode '%s', must be 'human', 'confirm' or 'yolo'", s)
}

// ModeForToken maps a mode switch token to its mode.
func ModeForToken(token string) (Mode, bool) {
	m, ok := modeTokens[token]
	return m, ok
}

// ModeController holds the current mode and the whitelist of commands that
// never need confirmation.
type ModeController struct {
	mode      Mode
	whitelist []*regexp.Regexp
}

// NewModeController compiles the whitelist. Patterns match at the start of
// a command.
func NewModeController(initial Mode, whitelist []string) (*ModeController, error) {
	if _, err := ParseMode(string(initial)); err != nil {
		return nil, err
	}
	mc := &ModeController{mode: initial}
	for _, pattern := range whitelist {
		re, err := regexp.Compile(`^(?:` + pattern + `)`)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid regex in whitelist_actions '%s'", pattern)
		}
		mc.whitelist = append(mc.whitelist, re)
	}
	return mc, nil
}

func (mc *ModeController) Mode() Mode { return mc.mode }

// Set switches to mode. It reports false and leaves the state alone when
// mode is already active.
func (mc *ModeController) Set(mode Mode) bool {
	if mc.mode == mode {
		return false
	}
	mc.mode = mode
	return true
}

// ShouldConfirm reports whether command needs the operator's approval.
func (mc *ModeController) ShouldConfirm(command string) bool {
	if mc.mode != ModeConfirm {
		return false
	}
	for _, re := range mc.whitelist {
		if re.MatchString(command) {
			return false
		}
	}
	return true
}
