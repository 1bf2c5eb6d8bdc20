package session

import (
	"regexp"
	"strings"
)

// lineReconstructor tracks an in-progress command line as raw
// terminal input is echoed back, so the gateway can log completed
// commands for audit without a real terminal emulator (spec §4.1).
// cursorIndex uses 0 as a sentinel for "end of line", matching a
// quirk of the original implementation: §4.1's table defines Ctrl-E
// and the left-arrow key as jumping to len(cmd_tmp)-2 rather than
// len(cmd_tmp)-1, which is reproduced verbatim rather than corrected
// (spec §9 Open Questions).
type lineReconstructor struct {
	cmdTmp         string
	cursorIndex    int
	cmdHistory     []string
	tabPending     bool
	historyPending bool
}

var ansiOrBackspace = regexp.MustCompile("(?:\x1b[@-_]|[\x80-\x9f])[0-?]*[ -/]*[@-~]|\x08")

// Apply feeds one client input chunk through the reconstructor.
func (l *lineReconstructor) Apply(t string) {
	switch {
	case t == "\r":
		l.cursorIndex = 0
		if strings.TrimSpace(l.cmdTmp) != "" {
			l.cmdHistory = append(l.cmdHistory, l.cmdTmp)
		}
		l.cmdTmp = ""
	case t == "\x07":
		// ignore
	case t == "\x03" || t == "\x01":
		l.cursorIndex = 0
	case t == "\x05":
		l.cursorIndex = len(l.cmdTmp) - 2
	case t == "\x1b[D":
		if l.cursorIndex == 0 {
			l.cursorIndex = len(l.cmdTmp) - 2
		} else {
			l.cursorIndex--
		}
	case t == "\x1b[C":
		l.cursorIndex++
	case t == "\x7f":
		if l.cursorIndex == 0 {
			if len(l.cmdTmp) > 0 {
				l.cmdTmp = l.cmdTmp[:len(l.cmdTmp)-1]
			}
		} else if l.cursorIndex >= 0 && l.cursorIndex < len(l.cmdTmp) {
			l.cmdTmp = l.cmdTmp[:l.cursorIndex] + l.cmdTmp[l.cursorIndex+1:]
		}
	case t == "\t" || t == "\x1b":
		l.tabPending = true
	case t == "\x1b[A" || t == "\x1b[B":
		l.historyPending = true
	default:
		if l.cursorIndex == 0 {
			l.cmdTmp += t
		} else if l.cursorIndex >= 0 && l.cursorIndex <= len(l.cmdTmp) {
			l.cmdTmp = l.cmdTmp[:l.cursorIndex] + t + l.cmdTmp[l.cursorIndex:]
		} else {
			l.cmdTmp += t
		}
	}
}

// ApplyTabCompletion consumes the backend echo of a tab-completed
// fragment once tabPending is set (spec §4.1 backend-read-loop step
// 3): the leading space-delimited token of s, with bell bytes
// stripped, is appended to cmd_tmp.
func (l *lineReconstructor) ApplyTabCompletion(s string) {
	if !l.tabPending {
		return
	}
	fragment := strings.SplitN(s, " ", 2)[0]
	fragment = strings.ReplaceAll(fragment, "\x07", "")
	l.cmdTmp += fragment
	l.tabPending = false
}

// ApplyHistoryRecall consumes the backend echo following a
// history-navigation keypress (step 4): cursor resets to end-of-line
// and cmd_tmp is replaced by the ANSI/backspace-stripped echo, unless
// the echo is blank.
func (l *lineReconstructor) ApplyHistoryRecall(s string) {
	if !l.historyPending {
		return
	}
	l.cursorIndex = 0
	if strings.TrimSpace(s) != "" {
		l.cmdTmp = ansiOrBackspace.ReplaceAllString(s, "")
	}
	l.historyPending = false
}

// finalizeHistory applies the vi/fg/ctrl-Z shutdown redaction to a
// command history and returns the resulting command list (spec §4.1
// Shutdown finalization). It works on a copy and does not mutate the
// history slice it is given.
func finalizeHistory(history []string) []string {
	result := make([]string, len(history))
	copy(result, history)

	viIndex, fgIndex, qIndex := -1, -1, -1
	for i, entry := range result {
		if strings.Contains(entry, "vi") {
			viIndex = i
		}
		if strings.Contains(entry, ":wq") || strings.Contains(entry, ":q!") || strings.Contains(entry, ":q") {
			qIndex = i
		}
		if idx := strings.IndexByte(entry, '\x1a'); idx >= 0 {
			parts := strings.SplitN(entry, "\x1a", 2)
			if len(parts) == 2 {
				result[i] = parts[1]
			}
		}
		if strings.Contains(entry, "fg") {
			fgIndex = i
		}
	}

	firstIndex := viIndex
	if fgIndex >= 0 {
		firstIndex = fgIndex
	}

	if viIndex >= 0 && qIndex >= 0 && qIndex+1 <= len(result) {
		result = append(result[:firstIndex+1:firstIndex+1], result[qIndex+1:]...)
	}

	return result
}
