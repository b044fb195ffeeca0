// Command keystroke is a facecue hook that turns gesture events into macOS
// keystrokes via AppleScript.
//
// It reads one event record from stdin and takes its bindings as arguments:
//
//	keystroke blink=space head_turn:left=cmd+[ head_turn:right=cmd+]
//
// A binding key is an event type, optionally narrowed by direction. The value
// is a key preceded by any modifiers (command, option, control, shift).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// record is the event shape written by facecue's hook sink.
type record struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Session   string `json:"session,omitempty"`
}

// keystroke is one bound key press.
type keystroke struct {
	Key       string
	Modifiers []string
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// namedKeys are sent by key code rather than as typed text.
var namedKeys = map[string]int{
	"space":  49,
	"return": 36,
	"escape": 53,
	"left":   123,
	"right":  124,
	"down":   125,
	"up":     126,
}

func main() {
	bindings, err := parseBindings(os.Args[1:])
	if err != nil {
		fail(err)
	}

	var rec record
	if err := json.NewDecoder(os.Stdin).Decode(&rec); err != nil {
		fail(fmt.Errorf("failed to decode event: %w", err))
	}

	ks, ok := lookup(bindings, rec)
	if !ok {
		return
	}
	if err := runAppleScript(buildKeystrokeScript(ks)); err != nil {
		fail(fmt.Errorf("%s: %w", rec.Type, err))
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// parseBindings reads "type[:direction]=[mod+...]key" arguments.
func parseBindings(args []string) (map[string]keystroke, error) {
	out := make(map[string]keystroke, len(args))
	for _, arg := range args {
		event, combo, ok := strings.Cut(arg, "=")
		if !ok || event == "" || combo == "" {
			return nil, fmt.Errorf("invalid binding %q", arg)
		}

		parts := strings.Split(combo, "+")
		ks := keystroke{Key: parts[len(parts)-1]}
		for _, mod := range parts[:len(parts)-1] {
			if _, ok := modifierMap[strings.ToLower(mod)]; !ok {
				return nil, fmt.Errorf("unknown modifier %q in %q", mod, arg)
			}
			ks.Modifiers = append(ks.Modifiers, mod)
		}
		if ks.Key == "" {
			return nil, fmt.Errorf("binding %q has no key", arg)
		}
		out[event] = ks
	}
	return out, nil
}

// lookup prefers a direction-specific binding over the plain type.
func lookup(bindings map[string]keystroke, rec record) (keystroke, bool) {
	if rec.Direction != "" {
		if ks, ok := bindings[rec.Type+":"+rec.Direction]; ok {
			return ks, true
		}
	}
	ks, ok := bindings[rec.Type]
	return ks, ok
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(ks keystroke) string {
	action := fmt.Sprintf(`keystroke "%s"`, ks.Key)
	if code, ok := namedKeys[strings.ToLower(ks.Key)]; ok {
		action = fmt.Sprintf("key code %d", code)
	}

	var appleModifiers []string
	for _, mod := range ks.Modifiers {
		appleModifiers = append(appleModifiers, modifierMap[strings.ToLower(mod)])
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to %s`, action)
	}
	return fmt.Sprintf(`tell application "System Events" to %s using {%s}`, action, strings.Join(appleModifiers, ", "))
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
