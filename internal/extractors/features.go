package extractors

import (
	"fmt"
	"strings"

	"github.com/triagestack/triage-engine/internal/models"
)

// FeatureExtractor distills an event's free-text behavioral fields into the
// compact indicator digest fed to the generative summarizer. Null and empty
// fields are dropped so the prompt carries only observed signal.
type FeatureExtractor struct{}

// NewFeatureExtractor constructs a feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Digest renders the event's indicators as one "Key: value" line per field.
func (e *FeatureExtractor) Digest(ev models.Event) string {
	lines := make([]string, 0, 12)
	appendLine := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("%s: %s", key, value))
	}

	appendLine("Host", ev.HostName)
	appendLine("Rule", ev.RuleID)
	appendLine("DetectType", ev.DetectType)
	appendLine("ParentProcess", ev.ParentProcessName)
	appendLine("Process", ev.ProcessName)
	appendLine("CommandLine", ev.CommandLine)
	appendLine("FilePath", ev.FilePath)
	appendLine("RegistryKey", ev.RegistryKey)
	if ev.RemoteIP != "" {
		remote := ev.RemoteIP
		if ev.RemotePort > 0 {
			remote = fmt.Sprintf("%s:%d", ev.RemoteIP, ev.RemotePort)
		}
		appendLine("RemoteAddress", remote)
	}
	if ev.Suspicious != nil {
		appendLine("Classification", ev.Suspicious.Classification)
	}
	if ev.Response != nil {
		for _, proc := range ev.Response.TerminatedProcesses {
			appendLine("TerminatedProcess", proc.CmdLine)
		}
	}
	appendLine("Scenario", ev.LLMScenario)
	appendLine("Tactics", ev.LLMTactics)
	if len(ev.LLMReasons) > 0 {
		appendLine("Reasons", strings.Join(ev.LLMReasons, ". "))
	}

	return strings.Join(lines, "\n")
}
