package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Anchor error codes the trading layer treats as slippage.
const (
	CodeTooMuchSolRequired     = "TooMuchSolRequired"
	CodeTooLittleSolReceived   = "TooLittleSolReceived"
	NumberTooMuchSolRequired   = 6002
	NumberTooLittleSolReceived = 6003
)

var (
	errorCodeRe    = regexp.MustCompile(`Error Code: ([A-Za-z0-9_]+)`)
	errorNumberRe  = regexp.MustCompile(`Error Number: (\d+)`)
	errorMessageRe = regexp.MustCompile(`Error Message: (.+)$`)
	customErrorRe  = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
	leftRe         = regexp.MustCompile(`Left:\s*(\S*)\s*$`)
	rightRe        = regexp.MustCompile(`Right:\s*(\S*)\s*$`)
)

// SendError is a program failure recovered from transaction logs.
type SendError struct {
	Signature string
	Logs      []string
	Code      string
	Number    int
	Message   string
	Left      string
	Right     string
	TxErr     interface{} // meta.err as returned by the node
}

func (e *SendError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("transaction failed: %s (%d): %s", e.Code, e.Number, e.Message)
	case e.Number != 0:
		return fmt.Sprintf("transaction failed: custom program error %d", e.Number)
	case e.TxErr != nil:
		return fmt.Sprintf("transaction failed: %v", e.TxErr)
	default:
		return "transaction failed"
	}
}

// IsSlippage reports whether the program rejected the trade on price.
func (e *SendError) IsSlippage() bool {
	switch e.Code {
	case CodeTooMuchSolRequired, CodeTooLittleSolReceived:
		return true
	}
	return e.Number == NumberTooMuchSolRequired || e.Number == NumberTooLittleSolReceived
}

// IsInsufficientFunds reports whether the signer could not pay.
func (e *SendError) IsInsufficientFunds() bool {
	for _, line := range e.Logs {
		l := strings.ToLower(line)
		if strings.Contains(l, "insufficient lamports") || strings.Contains(l, "insufficient funds") {
			return true
		}
	}
	return false
}

// ParseSendError extracts Anchor error details from logs. Left/Right values
// are read both inline ("Left: 5") and from the following log line.
func ParseSendError(logs []string, txErr interface{}) *SendError {
	e := &SendError{Logs: logs, TxErr: txErr}

	for i, line := range logs {
		if m := errorCodeRe.FindStringSubmatch(line); m != nil && e.Code == "" {
			e.Code = m[1]
		}
		if m := errorNumberRe.FindStringSubmatch(line); m != nil && e.Number == 0 {
			e.Number, _ = strconv.Atoi(m[1])
		}
		if m := errorMessageRe.FindStringSubmatch(line); m != nil && e.Message == "" {
			e.Message = strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
		}
		if m := customErrorRe.FindStringSubmatch(line); m != nil && e.Number == 0 {
			if n, err := strconv.ParseInt(m[1], 16, 32); err == nil {
				e.Number = int(n)
			}
		}
		if m := leftRe.FindStringSubmatch(line); m != nil && e.Left == "" {
			e.Left = operand(m[1], logs, i)
		}
		if m := rightRe.FindStringSubmatch(line); m != nil && e.Right == "" {
			e.Right = operand(m[1], logs, i)
		}
	}

	if e.Number == 0 {
		if n, ok := customCode(txErr); ok {
			e.Number = n
		}
	}
	return e
}

// operand returns the inline value, or the body of the next log line.
func operand(inline string, logs []string, i int) string {
	if inline != "" {
		return inline
	}
	if i+1 >= len(logs) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(logs[i+1], "Program log:"))
}

// customCode reads {"InstructionError":[idx,{"Custom":n}]} from meta.err.
func customCode(txErr interface{}) (int, bool) {
	m, ok := txErr.(map[string]interface{})
	if !ok {
		return 0, false
	}
	ie, ok := m["InstructionError"].([]interface{})
	if !ok || len(ie) != 2 {
		return 0, false
	}
	inner, ok := ie[1].(map[string]interface{})
	if !ok {
		return 0, false
	}
	code, ok := inner["Custom"].(float64)
	if !ok {
		return 0, false
	}
	return int(code), true
}
