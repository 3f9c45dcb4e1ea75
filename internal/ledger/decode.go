package ledger

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// Strategy names, reported in VerifyResult.Strategy.
const (
	StrategyCompiledBase58 = "compiled_base58"
	StrategyLegacyBase58   = "legacy_base58"
	StrategyLegacyRaw      = "legacy_raw"
	StrategyLegacyBase64   = "legacy_base64"
	StrategyLogMessages    = "log_messages"
)

type strategy struct {
	name   string
	list   func(*Transaction) []Instruction
	decode func([]byte) (string, bool)
}

var strategies = []strategy{
	{StrategyCompiledBase58, compiledInstructions, decodeBase58},
	{StrategyLegacyBase58, legacyInstructions, decodeBase58},
	{StrategyLegacyRaw, legacyInstructions, decodeRaw},
	{StrategyLegacyBase64, legacyInstructions, decodeBase64},
	{StrategyLogMessages, logInstructions, decodeRaw},
}

var memoLogLine = regexp.MustCompile(`^Program log: Memo \(len \d+\): (".*")$`)

// decodeResult is what the strategy walk found.
type decodeResult struct {
	memo     Memo
	strategy string
	found    bool
	// sawMemo is true when some memo-program payload existed, matched or not.
	sawMemo bool
}

// decodeMemo tries each strategy in order. The first payload matching the
// tagged pattern wins.
func decodeMemo(tx *Transaction) decodeResult {
	var res decodeResult
	for _, s := range strategies {
		for _, inst := range s.list(tx) {
			if inst.ProgramID != "" && !isMemoProgram(inst.ProgramID) {
				continue
			}
			if len(inst.Data) == 0 {
				continue
			}
			res.sawMemo = true
			payload, ok := s.decode(inst.Data)
			if !ok {
				continue
			}
			if m, ok := ParseMemo(payload); ok {
				return decodeResult{memo: m, strategy: s.name, found: true, sawMemo: true}
			}
		}
	}
	return res
}

func compiledInstructions(tx *Transaction) []Instruction { return tx.Compiled }

func legacyInstructions(tx *Transaction) []Instruction { return tx.Legacy }

// logInstructions lifts memo program log lines into pseudo-instructions.
func logInstructions(tx *Transaction) []Instruction {
	var out []Instruction
	for _, line := range tx.Logs {
		m := memoLogLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		text, err := strconv.Unquote(m[1])
		if err != nil {
			text = strings.Trim(m[1], `"`)
		}
		out = append(out, Instruction{ProgramID: MemoProgramID, Data: []byte(text)})
	}
	return out
}

func decodeBase58(data []byte) (string, bool) {
	raw, err := base58.Decode(strings.TrimSpace(string(data)))
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

func decodeRaw(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeBase64(data []byte) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}
